package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/oesukam/mus-sub000/internal/domain"
	pfirestore "github.com/oesukam/mus-sub000/internal/platform/firestore"
)

const productsCollection = "products"

// productDocument is the stock slice of a catalog product. Other catalog
// fields may exist on the same document; MergeAll writes leave them intact.
type productDocument struct {
	Name      string    `firestore:"name"`
	Stock     int       `firestore:"stock"`
	InStock   bool      `firestore:"inStock"`
	UnitPrice int64     `firestore:"price"`
	TaxRate   float64   `firestore:"taxRate"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

func (d productDocument) toDomain(id string) domain.ProductStock {
	return domain.ProductStock{
		ProductID: id,
		Name:      d.Name,
		Stock:     d.Stock,
		InStock:   d.InStock,
		UnitPrice: d.UnitPrice,
		TaxRate:   d.TaxRate,
		UpdatedAt: d.UpdatedAt,
	}
}

// ProductRepository implements repositories.ProductRepository backed by Firestore.
type ProductRepository struct {
	provider *pfirestore.Provider
	products *pfirestore.BaseRepository[productDocument]
}

// NewProductRepository constructs a Firestore-backed product stock repository.
func NewProductRepository(provider *pfirestore.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository requires firestore provider")
	}
	return &ProductRepository{
		provider: provider,
		products: pfirestore.NewBaseRepository[productDocument](provider, productsCollection),
	}, nil
}

// GetStock fetches the stock record for a single product.
func (r *ProductRepository) GetStock(ctx context.Context, productID string) (domain.ProductStock, error) {
	if r == nil || r.products == nil {
		return domain.ProductStock{}, errors.New("product repository not initialised")
	}
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return domain.ProductStock{}, errors.New("products: product id is required")
	}

	doc, err := r.products.Get(ctx, productID)
	if err != nil {
		return domain.ProductStock{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// GetStocks fetches stock records for the requested products in one batch.
// Products missing from the catalog are absent from the returned map.
func (r *ProductRepository) GetStocks(ctx context.Context, productIDs []string) (map[string]domain.ProductStock, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("product repository not initialised")
	}

	refs := make([]*firestore.DocumentRef, 0, len(productIDs))
	for _, id := range productIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		ref, err := r.products.DocumentRef(ctx, id)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	if len(refs) == 0 {
		return map[string]domain.ProductStock{}, nil
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	snapshots, err := client.GetAll(ctx, refs)
	if err != nil {
		return nil, pfirestore.WrapError("products.getAll", err)
	}

	stocks := make(map[string]domain.ProductStock, len(snapshots))
	for _, snapshot := range snapshots {
		if !snapshot.Exists() {
			continue
		}
		var doc productDocument
		if err := snapshot.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode product %s: %w", snapshot.Ref.ID, err)
		}
		stocks[snapshot.Ref.ID] = doc.toDomain(snapshot.Ref.ID)
	}
	return stocks, nil
}

// SetStock replaces the stock level for a product. The out-of-stock flag is
// derived from the level, never stored independently.
func (r *ProductRepository) SetStock(ctx context.Context, stock domain.ProductStock) (domain.ProductStock, error) {
	if r == nil || r.provider == nil {
		return domain.ProductStock{}, errors.New("product repository not initialised")
	}
	productID := strings.TrimSpace(stock.ProductID)
	if productID == "" {
		return domain.ProductStock{}, errors.New("products: product id is required")
	}
	if stock.Stock < 0 {
		return domain.ProductStock{}, errors.New("products: stock must be >= 0")
	}

	now := time.Now().UTC()
	var updated domain.ProductStock

	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.products.DocumentRef(ctx, productID)
		if err != nil {
			return err
		}
		snapshot, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var doc productDocument
		if err := snapshot.DataTo(&doc); err != nil {
			return fmt.Errorf("decode product %s: %w", productID, err)
		}

		doc.Stock = stock.Stock
		doc.InStock = stock.Stock > 0
		doc.UpdatedAt = now
		if err := tx.Update(ref, stockFieldUpdates(doc)); err != nil {
			return err
		}
		updated = doc.toDomain(productID)
		return nil
	})
	if err != nil {
		return domain.ProductStock{}, pfirestore.WrapError("products.setStock", err)
	}
	return updated, nil
}

// stockFieldUpdates limits writes to the stock slice so unrelated catalog
// fields on the same document survive.
func stockFieldUpdates(doc productDocument) []firestore.Update {
	return []firestore.Update{
		{Path: "stock", Value: doc.Stock},
		{Path: "inStock", Value: doc.InStock},
		{Path: "updatedAt", Value: doc.UpdatedAt},
	}
}
