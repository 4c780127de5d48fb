package hostel

// CanAccess reports whether an actor assigned to userHostel may view or post
// into target. userHostel is "" when the actor has no resolvable hostel.
// Read gating and write gating both go through this predicate.
func (d *Directory) CanAccess(userHostel, target string, isAdmin bool) bool {
	if isAdmin {
		return true
	}
	if d.IsCommon(target) {
		return true
	}
	return userHostel != "" && target == userHostel
}

// Accessible filters All through CanAccess, keeping its order.
func (d *Directory) Accessible(userHostel string, isAdmin bool) []string {
	var out []string
	for _, c := range d.All() {
		if d.CanAccess(userHostel, c, isAdmin) {
			out = append(out, c)
		}
	}
	return out
}
