package models

import "time"

// Field names a lead attribute that the client may edit. The set is closed:
// edits are built through the typed constructors below, so an invalid field
// name cannot reach the wire.
type Field string

const (
	FieldRestaurantName Field = "restaurant_name"
	FieldContactName    Field = "contact_name"
	FieldPhone          Field = "phone"
	FieldEmail          Field = "email"
	FieldLocation       Field = "location"
	FieldInstagram      Field = "instagram"
	FieldStatus         Field = "status"
	FieldScore          Field = "score"
	FieldAssignedTo     Field = "assigned_to"
	FieldNotes          Field = "notes"
)

// Edit is a single-field update intent.
type Edit struct {
	Field Field
	Value any
}

func SetRestaurantName(v string) Edit { return Edit{FieldRestaurantName, v} }
func SetContactName(v string) Edit    { return Edit{FieldContactName, v} }
func SetPhone(v string) Edit          { return Edit{FieldPhone, v} }
func SetEmail(v string) Edit          { return Edit{FieldEmail, v} }
func SetLocation(v string) Edit       { return Edit{FieldLocation, v} }
func SetInstagram(v string) Edit      { return Edit{FieldInstagram, v} }
func SetStatus(v Status) Edit         { return Edit{FieldStatus, v} }
func SetScore(v int) Edit             { return Edit{FieldScore, v} }
func SetAssignedTo(v *int64) Edit     { return Edit{FieldAssignedTo, v} }
func SetNotes(v string) Edit          { return Edit{FieldNotes, v} }

// FieldValue returns the lead's current value for a field, used to capture
// the server-confirmed value before a speculative edit is applied.
func (l *Lead) FieldValue(f Field) (any, bool) {
	switch f {
	case FieldRestaurantName:
		return l.RestaurantName, true
	case FieldContactName:
		return l.ContactName, true
	case FieldPhone:
		return l.Phone, true
	case FieldEmail:
		return l.Email, true
	case FieldLocation:
		return l.Location, true
	case FieldInstagram:
		return l.Instagram, true
	case FieldStatus:
		return l.Status, true
	case FieldScore:
		return l.Score, true
	case FieldAssignedTo:
		return l.AssignedTo, true
	case FieldNotes:
		return l.Notes, true
	case fieldFirstContactedAt:
		return l.FirstContactedAt, true
	}
	return nil, false
}

// applyField sets a single field. Values arrive either as the typed Go value
// from an Edit or as the JSON-decoded value from a server response.
func (l *Lead) applyField(f Field, value any) {
	switch f {
	case FieldRestaurantName:
		if v, ok := value.(string); ok {
			l.RestaurantName = v
		}
	case FieldContactName:
		if v, ok := value.(string); ok {
			l.ContactName = v
		}
	case FieldPhone:
		if v, ok := value.(string); ok {
			l.Phone = v
		}
	case FieldEmail:
		if v, ok := value.(string); ok {
			l.Email = v
		}
	case FieldLocation:
		if v, ok := value.(string); ok {
			l.Location = v
		}
	case FieldInstagram:
		if v, ok := value.(string); ok {
			l.Instagram = v
		}
	case FieldStatus:
		switch v := value.(type) {
		case Status:
			l.Status = v
		case string:
			l.Status = Status(v)
		}
	case FieldScore:
		switch v := value.(type) {
		case int:
			l.Score = v
		case float64:
			l.Score = int(v)
		}
	case FieldAssignedTo:
		switch v := value.(type) {
		case *int64:
			l.AssignedTo = v
		case int64:
			l.AssignedTo = &v
		case nil:
			l.AssignedTo = nil
		}
	case FieldNotes:
		if v, ok := value.(string); ok {
			l.Notes = v
		}
	case fieldFirstContactedAt:
		switch v := value.(type) {
		case *time.Time:
			l.FirstContactedAt = v
		case time.Time:
			l.FirstContactedAt = &v
		case nil:
			l.FirstContactedAt = nil
		}
	}
}

// PatchEntity applies fields to this lead when the id matches.
func (l *Lead) PatchEntity(id int64, fields map[string]any) bool {
	if l.ID != id {
		return false
	}
	for name, value := range fields {
		l.applyField(Field(name), value)
	}
	return true
}

// FindEntity returns this lead when the id matches.
func (l *Lead) FindEntity(id int64) (any, bool) {
	if l.ID != id {
		return nil, false
	}
	return l, true
}

// PatchEntity applies fields to the matching lead in the page, if present.
func (p *LeadPage) PatchEntity(id int64, fields map[string]any) bool {
	for i := range p.Results {
		if p.Results[i].PatchEntity(id, fields) {
			return true
		}
	}
	return false
}

// FindEntity returns the matching lead in the page, if present.
func (p *LeadPage) FindEntity(id int64) (any, bool) {
	for i := range p.Results {
		if p.Results[i].ID == id {
			return &p.Results[i], true
		}
	}
	return nil, false
}

// Action is a server-side lead transition exposed as a POST action endpoint.
type Action string

const (
	ActionMarkContacted Action = "mark_contacted"
	ActionQualify       Action = "qualify"
	ActionDisqualify    Action = "disqualify"
)

// SpeculativeFields returns the field changes the server will make for this
// action, applied locally while the request is in flight. The current lead is
// consulted because mark_contacted only stamps the first contact time once.
func (a Action) SpeculativeFields(current *Lead, now time.Time) map[Field]any {
	switch a {
	case ActionMarkContacted:
		fields := map[Field]any{FieldStatus: StatusContacted}
		if current.FirstContactedAt == nil {
			fields[fieldFirstContactedAt] = now
		}
		return fields
	case ActionQualify:
		return map[Field]any{FieldStatus: StatusQualified}
	case ActionDisqualify:
		return map[Field]any{FieldStatus: StatusDisqualified}
	}
	return nil
}

// fieldFirstContactedAt is only ever set speculatively by actions, never by a
// direct edit, so it stays out of the exported field set.
const fieldFirstContactedAt Field = "first_contacted_at"
