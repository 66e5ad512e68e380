package models

type User struct {
	ID           string   `json:"id" bson:"_id"`
	Name         string   `json:"name" bson:"name"`
	Email        string   `json:"email" bson:"email"`
	PasswordHash string   `json:"-" bson:"password"`
	Image        string   `json:"image" bson:"image"`
	Places       []string `json:"places" bson:"places"`
	// Version guards concurrent rewrites of Places.
	Version int64 `json:"-" bson:"version"`
}

// HasPlace reports whether placeID is in the user's places list.
func (u User) HasPlace(placeID string) bool {
	for _, id := range u.Places {
		if id == placeID {
			return true
		}
	}
	return false
}

// WithPlace returns a copy of the places list with placeID appended.
func (u User) WithPlace(placeID string) []string {
	places := make([]string, 0, len(u.Places)+1)
	places = append(places, u.Places...)
	return append(places, placeID)
}

// WithoutPlace returns a copy of the places list with placeID removed.
func (u User) WithoutPlace(placeID string) []string {
	places := make([]string, 0, len(u.Places))
	for _, id := range u.Places {
		if id != placeID {
			places = append(places, id)
		}
	}
	return places
}
