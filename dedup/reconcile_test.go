package dedup

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/use-agent/listwatch/models"
	"github.com/use-agent/listwatch/store"
)

// memStore is an in-memory Store that counts saves.
type memStore struct {
	props   []models.Property
	loadErr error
	saveErr error
	saves   int
}

func (m *memStore) Load() ([]models.Property, error) {
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	return append([]models.Property(nil), m.props...), nil
}

func (m *memStore) Save(props []models.Property) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saves++
	m.props = append([]models.Property(nil), props...)
	return nil
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func prop(id string) models.Property {
	return models.Property{
		ID:      id,
		Address: "Budapest XIII. kerület",
		Price:   "55,9",
		Size:    "72",
		Rooms:   "3",
		URL:     "/" + id,
	}
}

func ids(props []models.Property) string {
	out := make([]string, len(props))
	for i, p := range props {
		out[i] = p.ID
	}
	return strings.Join(out, ",")
}

func TestReconcile_NewAndKnown(t *testing.T) {
	ms := &memStore{props: []models.Property{prop("A1")}}
	r := NewReconciler(ms, discard())

	diff, err := r.Reconcile(context.Background(), []models.Property{prop("A1"), prop("B2")})
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	if got := ids(diff); got != "B2" {
		t.Errorf("diff = [%s], want [B2]", got)
	}
	if got := ids(ms.props); got != "A1,B2" {
		t.Errorf("store = [%s], want [A1,B2]", got)
	}
	if ms.saves != 1 {
		t.Errorf("saves = %d, want 1", ms.saves)
	}
}

func TestReconcile_Idempotent(t *testing.T) {
	ms := &memStore{props: []models.Property{prop("A1")}}
	r := NewReconciler(ms, discard())
	batch := []models.Property{prop("A1"), prop("B2"), prop("C3")}

	if _, err := r.Reconcile(context.Background(), batch); err != nil {
		t.Fatalf("first Reconcile: %v", err)
	}
	after := ids(ms.props)

	diff, err := r.Reconcile(context.Background(), batch)
	if err != nil {
		t.Fatalf("second Reconcile: %v", err)
	}
	if len(diff) != 0 {
		t.Errorf("second diff = [%s], want empty", ids(diff))
	}
	if diff == nil {
		t.Error("empty diff should be a non-nil slice")
	}
	if ms.saves != 1 {
		t.Errorf("saves = %d, want 1 (second run must not write)", ms.saves)
	}
	if ids(ms.props) != after {
		t.Errorf("store changed on second run: %s -> %s", after, ids(ms.props))
	}
}

func TestReconcile_ImageIgnored(t *testing.T) {
	ms := &memStore{props: []models.Property{prop("A1")}}
	r := NewReconciler(ms, discard())

	withImage := prop("A1")
	withImage.Image = &models.Image{Src: "https://img/a1.jpg", Body: io.NopCloser(strings.NewReader("jpeg"))}

	diff, err := r.Reconcile(context.Background(), []models.Property{withImage})
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if len(diff) != 0 {
		t.Errorf("record differing only in image reported as new")
	}
}

func TestReconcile_ChangedFieldIsNew(t *testing.T) {
	ms := &memStore{props: []models.Property{prop("A1")}}
	r := NewReconciler(ms, discard())

	cheaper := prop("A1")
	cheaper.Price = "52,5"

	diff, err := r.Reconcile(context.Background(), []models.Property{cheaper})
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if len(diff) != 1 {
		t.Fatalf("price change not reported, diff = [%s]", ids(diff))
	}
	if len(ms.props) != 2 {
		t.Errorf("store holds %d records, want both states of A1", len(ms.props))
	}
}

func TestReconcile_DuplicatesWithinRun(t *testing.T) {
	ms := &memStore{}
	r := NewReconciler(ms, discard())

	diff, err := r.Reconcile(context.Background(), []models.Property{prop("B2"), prop("B2"), prop("C3")})
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if got := ids(diff); got != "B2,C3" {
		t.Errorf("diff = [%s], want [B2,C3]", got)
	}
}

func TestReconcile_KeepsImageInDiffButNotInStore(t *testing.T) {
	ms := &memStore{}
	r := NewReconciler(ms, discard())

	p := prop("B2")
	p.Image = &models.Image{Src: "https://img/b2.jpg"}

	diff, err := r.Reconcile(context.Background(), []models.Property{p})
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if diff[0].Image == nil {
		t.Error("diff record lost its image")
	}
	if ms.props[0].Image != nil {
		t.Error("stored record kept its image")
	}
}

func TestReconcile_MissingStoreIsWarning(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	path := filepath.Join(t.TempDir(), "db.json")
	r := NewReconciler(store.NewJSONFile(path), logger)

	diff, err := r.Reconcile(context.Background(), []models.Property{prop("A1")})
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if len(diff) != 1 {
		t.Errorf("diff = [%s], want [A1]", ids(diff))
	}
	if !strings.Contains(buf.String(), "level=WARN") {
		t.Errorf("missing store should log a warning, log: %s", buf.String())
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("store not created: %v", err)
	}
}

func TestReconcile_CorruptStoreIsErrorButNotFatal(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	ms := &memStore{loadErr: errors.New("store: decode db.json: unexpected end of JSON input")}
	r := NewReconciler(ms, logger)

	diff, err := r.Reconcile(context.Background(), []models.Property{prop("A1"), prop("B2")})
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if got := ids(diff); got != "A1,B2" {
		t.Errorf("diff = [%s], want everything", got)
	}
	if !strings.Contains(buf.String(), "level=ERROR") {
		t.Errorf("corrupt store should log an error, log: %s", buf.String())
	}
}

func TestReconcile_SaveFailure(t *testing.T) {
	ms := &memStore{saveErr: errors.New("disk full")}
	r := NewReconciler(ms, discard())

	_, err := r.Reconcile(context.Background(), []models.Property{prop("A1")})
	var ce *models.CrawlError
	if !errors.As(err, &ce) || ce.Code != models.ErrCodeStoreWrite {
		t.Fatalf("expected store write error, got %v", err)
	}
	if ce.ExitCode() != 1 {
		t.Errorf("ExitCode() = %d, want 1", ce.ExitCode())
	}
}

func TestIndex(t *testing.T) {
	idx := NewIndex([]models.Property{prop("A1"), prop("A1"), prop("B2")})
	if idx.Len() != 2 {
		t.Errorf("Len = %d, want 2", idx.Len())
	}
	if !idx.Contains(prop("B2")) {
		t.Error("B2 missing")
	}
	if idx.Contains(prop("C3")) {
		t.Error("C3 unexpectedly present")
	}
}
