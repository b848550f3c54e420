// README: Gig and user documents as stored in Firestore and their order-facing summaries.
package directory

import (
	"fmt"
	"math"

	"gigmarket/internal/modules/order"
	"gigmarket/internal/types"
)

type packageDoc struct {
	Price        float64 `firestore:"price" json:"price"`
	DeliveryTime int     `firestore:"deliveryTime" json:"deliveryTime"`
	Revisions    any     `firestore:"revisions" json:"revisions"`
}

type gigDoc struct {
	Title        string                `firestore:"title" json:"title"`
	Images       []string              `firestore:"images" json:"images"`
	FreelancerID string                `firestore:"freelancerId" json:"freelancerId"`
	Currency     string                `firestore:"currency" json:"currency"`
	Packages     map[string]packageDoc `firestore:"packages" json:"packages"`
}

type userDoc struct {
	DisplayName string `firestore:"displayName" json:"displayName"`
	PhotoURL    string `firestore:"photoURL" json:"photoURL"`
}

// toGigSummary converts a gig document. Prices are stored in major units.
func toGigSummary(id types.ID, d gigDoc) (*order.GigSummary, error) {
	g := &order.GigSummary{
		ID:           id,
		Title:        d.Title,
		FreelancerID: types.ID(d.FreelancerID),
		Packages:     make(map[string]order.PackageTerms, len(d.Packages)),
	}
	if len(d.Images) > 0 {
		g.ImageURL = d.Images[0]
	}
	for name, p := range d.Packages {
		revisions, err := order.ParseRevisions(p.Revisions)
		if err != nil {
			return nil, fmt.Errorf("directory: gig %s package %s: %w", id, name, err)
		}
		g.Packages[name] = order.PackageTerms{
			Price:        types.NewMoney(int64(math.Round(p.Price*100)), d.Currency),
			DeliveryDays: p.DeliveryTime,
			Revisions:    revisions,
		}
	}
	return g, nil
}

func toPartySummary(id types.ID, d userDoc) *order.PartySummary {
	return &order.PartySummary{ID: id, DisplayName: d.DisplayName, PhotoURL: d.PhotoURL}
}
