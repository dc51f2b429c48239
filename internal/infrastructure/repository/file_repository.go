package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"shopify-orders-exporter/internal/domain"
	"shopify-orders-exporter/internal/ports"
)

// FileShopRepository implements ShopStore on a single JSON file mapping shop
// domain to record. The whole file is rewritten on every mutation; a mutex
// serializes read-modify-write cycles and the write goes through a temp file
// and rename so readers never observe a partial file.
type FileShopRepository struct {
	path string
	mu   sync.Mutex
}

type shopFileDoc struct {
	AccessToken   string    `json:"accessToken"`
	InstalledAt   time.Time `json:"installedAt"`
	ChargeID      *int64    `json:"chargeId,omitempty"`
	BillingActive bool      `json:"billingActive"`
}

// NewFileShopRepository creates a shop repository backed by the given file.
// The file does not have to exist yet.
func NewFileShopRepository(path string) ports.ShopStore {
	return &FileShopRepository{path: path}
}

// GetShop retrieves a shop by domain, nil if absent
func (r *FileShopRepository) GetShop(ctx context.Context, shopDomain string) (*domain.Shop, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	shops, err := r.load()
	if err != nil {
		return nil, err
	}

	doc, ok := shops[shopDomain]
	if !ok {
		return nil, nil
	}
	return doc.toDomain(shopDomain), nil
}

// UpsertToken creates or refreshes the shop record's access token without
// touching billing fields
func (r *FileShopRepository) UpsertToken(ctx context.Context, shopDomain, accessToken string, installedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	shops, err := r.load()
	if err != nil {
		return err
	}

	doc := shops[shopDomain]
	if doc == nil {
		doc = &shopFileDoc{}
		shops[shopDomain] = doc
	}
	doc.AccessToken = accessToken
	doc.InstalledAt = installedAt

	return r.save(shops)
}

// ActivateBilling marks the shop's recurring charge as approved
func (r *FileShopRepository) ActivateBilling(ctx context.Context, shopDomain string, chargeID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	shops, err := r.load()
	if err != nil {
		return err
	}

	doc := shops[shopDomain]
	if doc == nil {
		return fmt.Errorf("shop not found: %s", shopDomain)
	}
	doc.BillingActive = true
	doc.ChargeID = &chargeID

	return r.save(shops)
}

// ListShops retrieves all shops, sorted by domain
func (r *FileShopRepository) ListShops(ctx context.Context) ([]*domain.Shop, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	shops, err := r.load()
	if err != nil {
		return nil, err
	}

	domains := make([]string, 0, len(shops))
	for d := range shops {
		domains = append(domains, d)
	}
	sort.Strings(domains)

	out := make([]*domain.Shop, 0, len(domains))
	for _, d := range domains {
		out = append(out, shops[d].toDomain(d))
	}
	return out, nil
}

func (d *shopFileDoc) toDomain(shopDomain string) *domain.Shop {
	return &domain.Shop{
		Domain:        shopDomain,
		AccessToken:   d.AccessToken,
		InstalledAt:   d.InstalledAt,
		ChargeID:      d.ChargeID,
		BillingActive: d.BillingActive,
	}
}

func (r *FileShopRepository) load() (map[string]*shopFileDoc, error) {
	data, err := os.ReadFile(r.path)
	if os.IsNotExist(err) {
		return map[string]*shopFileDoc{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read shops file: %w", err)
	}

	shops := map[string]*shopFileDoc{}
	if err := json.Unmarshal(data, &shops); err != nil {
		return nil, fmt.Errorf("failed to parse shops file: %w", err)
	}
	return shops, nil
}

func (r *FileShopRepository) save(shops map[string]*shopFileDoc) error {
	data, err := json.MarshalIndent(shops, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode shops file: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(r.path), ".shops-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp shops file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write shops file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close shops file: %w", err)
	}

	if err := os.Rename(tmp.Name(), r.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace shops file: %w", err)
	}
	return nil
}
