package core

// changes.go implements the change-set builder: the per-field diff between
// an existing row and its incoming replacement that is shown in the
// preview and frozen verbatim inside the snapshot.

// BuildChanges diffs every mapped field between the existing row's current
// display value and the incoming raw value. Fields with equal values are
// omitted. The Email and Phone identity fields compare by their normalized
// forms, so a cosmetic reformat ("555-1234" vs "5551234") is not reported
// as a change; the other four fields compare as plain strings.
//
// An empty ChangeSet is a legitimate result: the target stays selectable
// and applying it is an error-free no-op on visible fields.
func BuildChanges(existing Contact, incoming IncomingRecord) ChangeSet {
	changes := ChangeSet{}

	addIfChanged := func(field, oldVal, newVal string) {
		if oldVal != newVal {
			changes[field] = FieldChange{Old: oldVal, New: newVal}
		}
	}

	addIfChanged("Company", existing.Company, incoming.Company)
	addIfChanged("Name", existing.Name, incoming.Name)
	addIfChanged("Surname", existing.Surname, incoming.Surname)
	addIfChanged("Position", existing.Position, incoming.Position)

	if existing.EmailNormalized != NormalizeEmail(incoming.Email) {
		changes["Email"] = FieldChange{Old: existing.Email, New: incoming.Email}
	}
	if existing.PhoneNormalized != NormalizePhone(incoming.Phone) {
		changes["Phone"] = FieldChange{Old: existing.Phone, New: incoming.Phone}
	}

	return changes
}
