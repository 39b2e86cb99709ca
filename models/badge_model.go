package models

import (
	"slices"
	"time"
)

const MaxCommentLength = 200

type Badge struct {
	ID            string    `json:"id" bson:"_id"`
	OwnerID       string    `json:"owner_id" bson:"owner_id"`
	OwnerUsername string    `json:"owner_username" bson:"owner_username"`
	FrontImage    string    `json:"front_image" bson:"front_image"`
	BackImage     string    `json:"back_image" bson:"back_image"`
	LocationText  string    `json:"location" bson:"location"`
	MonumentID    string    `json:"monument_id,omitempty" bson:"monument_id,omitempty"`
	Comments      []Comment `json:"comments" bson:"comments"`
	Likes         []Like    `json:"likes" bson:"likes"`
	CreatedAt     time.Time `json:"created_at" bson:"created_at"`
}

type Comment struct {
	ID                string    `json:"id" bson:"id"`
	CommenterID       string    `json:"commenter_id" bson:"commenter_id"`
	CommenterUsername string    `json:"commenter_username" bson:"commenter_username"`
	Text              string    `json:"text" bson:"text"`
	CreatedAt         time.Time `json:"created_at" bson:"created_at"`
}

type Like struct {
	UserID    string    `json:"user_id" bson:"user_id"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}

func (b Badge) LikedBy(userID string) bool {
	return slices.ContainsFunc(b.Likes, func(l Like) bool { return l.UserID == userID })
}

func (b Badge) Comment(id string) (Comment, bool) {
	i := slices.IndexFunc(b.Comments, func(c Comment) bool { return c.ID == id })
	if i < 0 {
		return Comment{}, false
	}
	return b.Comments[i], true
}

// BadgeLikeState is the authoritative like status returned after a toggle.
type BadgeLikeState struct {
	BadgeID   string `json:"badge_id"`
	UserID    string `json:"user_id"`
	Liked     bool   `json:"liked"`
	LikeCount int    `json:"like_count"`
}

func (b Badge) LikeState(userID string) BadgeLikeState {
	return BadgeLikeState{
		BadgeID:   b.ID,
		UserID:    userID,
		Liked:     b.LikedBy(userID),
		LikeCount: len(b.Likes),
	}
}
