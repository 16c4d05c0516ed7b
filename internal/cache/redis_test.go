package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/shopspring/decimal"

	"celustock/backend/internal/domain"
)

func newTestRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	server := miniredis.RunT(t)
	client := NewRedis(server.Addr(), "", 0)
	t.Cleanup(func() { _ = client.Close() })
	return client, server
}

func TestRedisDashboardMissReturnsNotFound(t *testing.T) {
	client, _ := newTestRedis(t)

	report, ok, err := client.GetDashboard(context.Background(), "celustock:dashboard:2024:all")
	if err != nil {
		t.Fatalf("get dashboard: %v", err)
	}
	if ok || report != nil {
		t.Fatalf("expected cache miss, got %+v", report)
	}
}

func TestRedisDashboardRoundTrip(t *testing.T) {
	client, server := newTestRedis(t)
	ctx := context.Background()
	key := "celustock:dashboard:2024:store-centro"

	want := &domain.DashboardReport{
		Year:        2024,
		StoreID:     "store-centro",
		TotalSales:  decimal.RequireFromString("2750.50"),
		TotalIncome: decimal.NewFromInt(300),
		UnitsSold:   3,
		SalesCount:  2,
		TopProducts: []domain.TopProduct{{ProductID: "prod-redmi-13c", Name: "Redmi 13C", Units: 2}},
	}
	if err := client.SetDashboard(ctx, key, want, time.Hour); err != nil {
		t.Fatalf("set dashboard: %v", err)
	}

	got, ok, err := client.GetDashboard(ctx, key)
	if err != nil || !ok {
		t.Fatalf("expected cache hit, got ok=%t err=%v", ok, err)
	}
	if !got.TotalSales.Equal(want.TotalSales) || got.UnitsSold != 3 || got.StoreID != "store-centro" {
		t.Fatalf("unexpected cached report %+v", got)
	}
	if len(got.TopProducts) != 1 || got.TopProducts[0].Name != "Redmi 13C" {
		t.Fatalf("unexpected top products %+v", got.TopProducts)
	}

	server.FastForward(time.Hour + time.Second)
	if _, ok, _ := client.GetDashboard(ctx, key); ok {
		t.Fatalf("expected entry to expire after its ttl")
	}
}

func TestRedisDashboardRejectsCorruptPayload(t *testing.T) {
	client, server := newTestRedis(t)
	key := "celustock:dashboard:2023:all"
	if err := server.Set(key, "{not json"); err != nil {
		t.Fatalf("seed key: %v", err)
	}

	if _, ok, err := client.GetDashboard(context.Background(), key); err == nil || ok {
		t.Fatalf("expected decode error, got ok=%t err=%v", ok, err)
	}
}

func TestRedisLockIsExclusiveUntilReleased(t *testing.T) {
	client, _ := newTestRedis(t)
	ctx := context.Background()
	key := "celustock:batch:store-centro"

	release, err := client.Obtain(ctx, key, 5*time.Second)
	if err != nil {
		t.Fatalf("obtain lock: %v", err)
	}

	if _, err := client.Obtain(ctx, key, 5*time.Second); !errors.Is(err, ErrLockNotObtained) {
		t.Fatalf("expected ErrLockNotObtained while held, got %v", err)
	}

	release()
	again, err := client.Obtain(ctx, key, 5*time.Second)
	if err != nil {
		t.Fatalf("obtain after release: %v", err)
	}
	again()
}

func TestRedisPingFailsWhenServerIsDown(t *testing.T) {
	client, server := newTestRedis(t)
	if err := client.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
	server.Close()
	if err := client.Ping(context.Background()); err == nil {
		t.Fatalf("expected ping to fail after shutdown")
	}
}
