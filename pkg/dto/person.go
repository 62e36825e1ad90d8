package dto

import "github.com/google/uuid"

type CreateFolderRequest struct {
	Name string `json:"name" binding:"required"`
}

type RenamePersonRequest struct {
	Name string `json:"name" binding:"required"`
}

type PersonResponse struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	CollectionID string    `json:"collection_id"`
	IsFolder     bool      `json:"is_folder"`
	PhotoCount   int       `json:"photo_count"`
	CreatedAt    string    `json:"created_at"`
}

// MovePhotoRequest moves (or with Copy set, copies) a photo from the person in
// the path to TargetPersonID.
type MovePhotoRequest struct {
	TargetPersonID uuid.UUID `json:"target_person_id" binding:"required"`
	Copy           bool      `json:"copy"`
}

type SendPhotosRequest struct {
	Recipient string `json:"recipient" binding:"required"`
	Message   string `json:"message"`
}

type SearchResult struct {
	PersonID uuid.UUID `json:"person_id"`
	Name     string    `json:"name"`
	Score    float64   `json:"score"`
	Face     int       `json:"face"`
}
