package models

import (
	"slices"
	"time"
)

type User struct {
	ID             string     `json:"id" bson:"_id"`
	Username       string     `json:"username" bson:"username"`
	Email          string     `json:"email,omitempty" bson:"email"`
	PasswordHash   string     `json:"-" bson:"password_hash"`
	Private        bool       `json:"private" bson:"private"`
	Following      []string   `json:"following" bson:"following"`
	Followers      []string   `json:"followers" bson:"followers"`
	FollowRequests []string   `json:"follow_requests" bson:"follow_requests"`
	Wishlist       []string   `json:"wishlist" bson:"wishlist"`
	CreatedAt      time.Time  `json:"created_at" bson:"created_at"`
	DeletedAt      *time.Time `json:"deleted_at,omitempty" bson:"deleted_at,omitempty"`
}

// Deleted reports whether the account carries the soft-delete marker.
func (u User) Deleted() bool { return u.DeletedAt != nil }

func (u User) IsFollowing(id string) bool { return slices.Contains(u.Following, id) }

func (u User) HasRequestFrom(id string) bool { return slices.Contains(u.FollowRequests, id) }

// PublicUser is the shape returned to other users.
type PublicUser struct {
	ID             string `json:"id"`
	Username       string `json:"username"`
	Private        bool   `json:"private"`
	FollowerCount  int    `json:"follower_count"`
	FollowingCount int    `json:"following_count"`
}

func (u User) Public() PublicUser {
	return PublicUser{
		ID:             u.ID,
		Username:       u.Username,
		Private:        u.Private,
		FollowerCount:  len(u.Followers),
		FollowingCount: len(u.Following),
	}
}
