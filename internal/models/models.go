package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Product is the canonical search-result shape. Every field is always set.
type Product struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Price       float64 `json:"price"`
	ImageURL    string  `json:"imageUrl"`
	ProductLink string  `json:"productLink"`
	Source      string  `json:"source"`
}

type ProductDetails struct {
	ProductResults  ProductResults  `json:"productResults" mapstructure:"productResults"`
	RelatedSearches []RelatedSearch `json:"relatedSearches" mapstructure:"relatedSearches"`
}

type ProductResults struct {
	Title                string           `json:"title" mapstructure:"title"`
	Brand                string           `json:"brand" mapstructure:"brand"`
	Reviews              int              `json:"reviews" mapstructure:"reviews"`
	Rating               float64          `json:"rating" mapstructure:"rating"`
	Image                string           `json:"image,omitempty" mapstructure:"image"`
	Thumbnails           []string         `json:"thumbnails,omitempty" mapstructure:"thumbnails"`
	Stores               []Store          `json:"stores" mapstructure:"stores"`
	Variants             []VariantGroup   `json:"variants" mapstructure:"variants"`
	Ratings              []RatingBucket   `json:"ratings,omitempty" mapstructure:"ratings"`
	UserReviews          []UserReview     `json:"userReviews,omitempty" mapstructure:"userReviews"`
	Videos               []Video          `json:"videos,omitempty" mapstructure:"videos"`
	DiscussionsAndForums []Discussion     `json:"discussionsAndForums,omitempty" mapstructure:"discussionsAndForums"`
	MoreOptions          []MoreOption     `json:"moreOptions,omitempty" mapstructure:"moreOptions"`
	AboutTheProduct      *AboutTheProduct `json:"aboutTheProduct,omitempty" mapstructure:"aboutTheProduct"`
}

// Store is one merchant offer. Price, Shipping and Total are display strings.
type Store struct {
	Name          string `json:"name" mapstructure:"name"`
	Link          string `json:"link" mapstructure:"link"`
	Price         string `json:"price" mapstructure:"price"`
	Shipping      string `json:"shipping" mapstructure:"shipping"`
	Total         string `json:"total" mapstructure:"total"`
	Logo          string `json:"logo,omitempty" mapstructure:"logo"`
	OriginalPrice string `json:"originalPrice,omitempty" mapstructure:"originalPrice"`
	Discount      string `json:"discount,omitempty" mapstructure:"discount"`
}

type VariantGroup struct {
	Title string          `json:"title" mapstructure:"title"`
	Items []VariantOption `json:"items" mapstructure:"items"`
}

// VariantOption carries an ID when picking it requires refetching details.
type VariantOption struct {
	Name      string `json:"name" mapstructure:"name"`
	Selected  *bool  `json:"selected,omitempty" mapstructure:"selected"`
	Available *bool  `json:"available,omitempty" mapstructure:"available"`
	ID        string `json:"id,omitempty" mapstructure:"id"`
}

func (o VariantOption) IsSelected() bool { return o.Selected != nil && *o.Selected }

// IsAvailable treats a missing flag as available.
func (o VariantOption) IsAvailable() bool { return o.Available == nil || *o.Available }

type RatingBucket struct {
	Stars  int `json:"stars" mapstructure:"stars"`
	Amount int `json:"amount" mapstructure:"amount"`
}

type UserReview struct {
	Title  string  `json:"title,omitempty" mapstructure:"title"`
	Text   string  `json:"text" mapstructure:"text"`
	Rating float64 `json:"rating" mapstructure:"rating"`
	Source string  `json:"source,omitempty" mapstructure:"source"`
	Date   string  `json:"date,omitempty" mapstructure:"date"`
	Author string  `json:"userName,omitempty" mapstructure:"userName"`
}

type Video struct {
	Title     string `json:"title" mapstructure:"title"`
	Link      string `json:"link" mapstructure:"link"`
	Source    string `json:"source,omitempty" mapstructure:"source"`
	Channel   string `json:"channel,omitempty" mapstructure:"channel"`
	Duration  string `json:"duration,omitempty" mapstructure:"duration"`
	Thumbnail string `json:"thumbnail,omitempty" mapstructure:"thumbnail"`
}

type Discussion struct {
	Title  string `json:"title" mapstructure:"title"`
	Link   string `json:"link" mapstructure:"link"`
	Source string `json:"source,omitempty" mapstructure:"source"`
	Date   string `json:"date,omitempty" mapstructure:"date"`
}

type MoreOption struct {
	Title     string  `json:"title" mapstructure:"title"`
	Link      string  `json:"link" mapstructure:"link"`
	Price     string  `json:"price,omitempty" mapstructure:"price"`
	Rating    float64 `json:"rating,omitempty" mapstructure:"rating"`
	Reviews   int     `json:"reviews,omitempty" mapstructure:"reviews"`
	Thumbnail string  `json:"thumbnail,omitempty" mapstructure:"thumbnail"`
}

type AboutTheProduct struct {
	Description string    `json:"description,omitempty" mapstructure:"description"`
	Features    []Feature `json:"features,omitempty" mapstructure:"features"`
}

type Feature struct {
	Title string `json:"title" mapstructure:"title"`
	Value string `json:"value" mapstructure:"value"`
}

type RelatedSearch struct {
	Query string `json:"query" mapstructure:"query"`
	Image string `json:"image" mapstructure:"image"`
	Link  string `json:"link" mapstructure:"link"`
}

// CartItem is one line of the cart snapshot held for a session.
type CartItem struct {
	ProductID        string         `json:"productId"`
	Name             string         `json:"name"`
	Price            float64        `json:"price"`
	Quantity         int            `json:"quantity"`
	ProductImageLink string         `json:"productImageLink,omitempty"`
	ProductLink      string         `json:"productLink,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}

type CartEventKind string

const (
	CartEventAdded     CartEventKind = "added"
	CartEventRemoved   CartEventKind = "removed"
	CartEventRefreshed CartEventKind = "refreshed"
	CartEventCheckout  CartEventKind = "checkout"
)

// CartEvent is published after every applied cart mutation.
type CartEvent struct {
	ID        string        `json:"id"`
	SessionID string        `json:"session_id"`
	Kind      CartEventKind `json:"kind"`
	ProductID string        `json:"product_id,omitempty"`
	Items     []CartItem    `json:"items"`
	Count     int           `json:"count"`
	At        time.Time     `json:"at"`
}

// SessionRecord tracks a browser identifier seen by the storefront.
type SessionRecord struct {
	gorm.Model
	SessionID  string `gorm:"uniqueIndex;not null"`
	LastSeenAt time.Time
	Expired    bool `gorm:"default:false"`
}

// CartSnapshot is the persisted last-good cart of a session.
type CartSnapshot struct {
	gorm.Model
	EventID   string `gorm:"uniqueIndex"`
	SessionID string `gorm:"index;not null"`
	Kind      string
	Items     datatypes.JSON `gorm:"type:jsonb"`
	Count     int
	TakenAt   time.Time
}

// CartItems decodes the stored line items.
func (s *CartSnapshot) CartItems() ([]CartItem, error) {
	var items []CartItem
	if len(s.Items) == 0 {
		return items, nil
	}
	if err := json.Unmarshal(s.Items, &items); err != nil {
		return nil, err
	}
	return items, nil
}
