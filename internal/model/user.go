package model

// User is the read-only view of a person as exposed by the user
// directory.  Bookings reference users by ID only; the directory is
// consulted to verify the user exists before any state is written.
//
// Fields:
//  ID    – primary key identifier of the user.
//  Name  – display name.
//  Email – contact email address.
//  Phone – contact phone number (may be empty).
type User struct {
	ID    int64  `json:"id"`    // users.id
	Name  string `json:"name"`  // users.name
	Email string `json:"email"` // users.email
	Phone string `json:"phone"` // users.phone
}
