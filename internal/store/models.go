package store

import "time"

// Question is a thread root. CommentIDs is append-only insertion order;
// CommenterIDs is the presence set behind the commenter dedup check.
type Question struct {
	ID            string          `json:"id"`
	Text          string          `json:"question"`
	AuthorID      string          `json:"authorId"`
	Context       string          `json:"context,omitempty"`
	URL           string          `json:"url,omitempty"`
	Image         string          `json:"img,omitempty"`
	LikerIDs      []string        `json:"likeIds"`
	CommenterIDs  map[string]bool `json:"commenterIds"`
	CommentIDs    []string        `json:"commentIds"`
	SubscriberIDs []string        `json:"subscriberIds"`
	DateCreated   time.Time       `json:"dateCreated"`
	DateModified  time.Time       `json:"dateModified"`
	Modified      bool            `json:"modified"`
}

// Comment replies to a question or to another comment; the tree is a forest
// rooted at questions. Origin is the coarse network tag carried only for
// anonymous abuse checks.
type Comment struct {
	ID           string    `json:"id"`
	ParentID     string    `json:"parentId"`
	AuthorID     string    `json:"authorId"`
	Text         string    `json:"comment"`
	LikerIDs     []string  `json:"likeIds"`
	CommentIDs   []string  `json:"commentIds"`
	Origin       string    `json:"ip,omitempty"`
	DateCreated  time.Time `json:"dateCreated"`
	DateModified time.Time `json:"dateModified"`
	Modified     bool      `json:"modified"`
}

// RegisteredUser is the durable profile variant of an author. Only the fields
// the comment feed reads are modeled here; profile CRUD lives elsewhere.
type RegisteredUser struct {
	ID          string    `json:"id"`
	FirstName   string    `json:"firstName,omitempty"`
	LastName    string    `json:"lastName,omitempty"`
	Email       string    `json:"email,omitempty"`
	Enneagram   string    `json:"enneagramId,omitempty"`
	MBTI        string    `json:"mbtiId,omitempty"`
	Confirmed   bool      `json:"confirmedUser"`
	DateCreated time.Time `json:"dateCreated"`
}

// AnonymousParticipant is the ephemeral author variant. Questions tracks the
// threads the participant has commented on.
type AnonymousParticipant struct {
	ID           string          `json:"id"`
	Questions    map[string]bool `json:"questions"`
	DateCreated  time.Time       `json:"dateCreated"`
	DateModified time.Time       `json:"dateModified"`
}
