package rag

// Accessible reports whether the user may read the file and its chunks.
// Admins bypass every restriction list. For everyone else the file's
// restriction list is a deny-list: the user is refused exactly when their id
// appears in it, and an empty list means the file is readable by all users.
func Accessible(file *File, user *User) bool {
	if file == nil || user == nil {
		return false
	}
	if user.Role == RoleAdmin {
		return true
	}
	for _, id := range file.RestrictedUserIDs {
		if id == user.ID {
			return false
		}
	}
	return true
}
