package constants

import (
	"context"
	"sort"
	"sync"
)

// productsMu protects concurrent access to the Products map.
var productsMu sync.RWMutex

// Product codes for the WanderSure travel insurance range.
const (
	ProductBasic    = "basic"
	ProductExplorer = "explorer"
	ProductPremium  = "premium"
	ProductAnnual   = "annual-multi-trip"
)

// ProductInfo describes a purchasable product as shown on checkout pages
// and in agent-facing listings.
type ProductInfo struct {
	// DisplayName is the checkout line item label.
	DisplayName string
	// Visible controls whether the product appears in listings. Set false
	// for products being phased in or out.
	Visible bool
	// Order controls display order (lower = first).
	Order int
}

// Products maps product codes to display info. To change the catalog,
// modify this map or ship config/products.json in the S3 overlay.
var Products = map[string]ProductInfo{
	ProductBasic: {
		DisplayName: "WanderSure Basic",
		Visible:     true,
		Order:       0,
	},
	ProductExplorer: {
		DisplayName: "WanderSure Explorer",
		Visible:     true,
		Order:       1,
	},
	ProductPremium: {
		DisplayName: "WanderSure Premium",
		Visible:     true,
		Order:       2,
	},
	ProductAnnual: {
		DisplayName: "WanderSure Annual Multi-Trip",
		Visible:     true,
		Order:       3,
	},
}

// GetProduct returns the catalog entry for a product code.
func GetProduct(code string) (ProductInfo, bool) {
	productsMu.RLock()
	defer productsMu.RUnlock()
	info, ok := Products[code]
	return info, ok
}

// ResolveProductName returns the display name for a product code, checking
// S3 overrides first. Unknown codes pass through unchanged so agents can
// sell products the catalog has not caught up with yet.
func ResolveProductName(ctx context.Context, code string) string {
	if loader := GetProductLoader(); loader != nil && loader.Enabled() {
		loader.MaybeRefresh(ctx)
		if info := loader.GetProduct(code); info != nil {
			return info.DisplayName
		}
	}
	if info, ok := GetProduct(code); ok {
		return info.DisplayName
	}
	return code
}

// VisibleProducts returns the visible catalog entries with their codes,
// sorted by Order.
func VisibleProducts() []ProductListing {
	productsMu.RLock()
	listings := make([]ProductListing, 0, len(Products))
	for code, info := range Products {
		if !info.Visible {
			continue
		}
		listings = append(listings, ProductListing{Code: code, ProductInfo: info})
	}
	productsMu.RUnlock()

	sort.Slice(listings, func(i, j int) bool {
		if listings[i].Order != listings[j].Order {
			return listings[i].Order < listings[j].Order
		}
		return listings[i].Code < listings[j].Code
	})
	return listings
}

// ProductListing pairs a product code with its catalog entry.
type ProductListing struct {
	Code string
	ProductInfo
}
