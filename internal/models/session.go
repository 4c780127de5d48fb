package models

// Session is the authenticated identity of the caller. It is passed
// explicitly to every service operation; a nil Session means anonymous.
type Session struct {
	UserID  string
	IsAdmin bool
}

// Authenticated reports whether s identifies a user.
func (s *Session) Authenticated() bool {
	return s != nil && s.UserID != ""
}
