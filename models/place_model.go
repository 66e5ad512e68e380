package models

type Place struct {
	ID          string   `json:"id" bson:"_id"`
	Title       string   `json:"title" bson:"title"`
	Description string   `json:"description" bson:"description"`
	Address     string   `json:"address" bson:"address"`
	Location    Location `json:"location" bson:"location"`
	Image       string   `json:"image" bson:"image"`
	Creator     string   `json:"creator" bson:"creator"`
}

// Location is a resolved coordinate pair. It only ever comes from a geocoder.
type Location struct {
	Lat float64 `json:"lat" bson:"lat"`
	Lng float64 `json:"lng" bson:"lng"`
}
