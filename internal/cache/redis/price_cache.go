package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/0xBased-lang/zmart-engine/internal/domain"
)

// MarketPrice is a cached post-trade price pair. Prices are fixed-point
// int64 scaled by 1e9; yes and no always sum to one unit.
type MarketPrice struct {
	PriceYes int64
	PriceNo  int64
	At       time.Time
}

// PriceCache keeps the latest marginal prices per market in Redis hashes at
// "price:{marketID}", so dashboards and bots read prices without hitting the
// store. Writes happen after each committed trade; the store remains the
// source of truth.
type PriceCache struct {
	rdb *redis.Client
}

// NewPriceCache creates a PriceCache backed by the given Client.
func NewPriceCache(c *Client) *PriceCache {
	return &PriceCache{rdb: c.Underlying()}
}

func priceKey(marketID string) string {
	return "price:" + marketID
}

// SetPrice stores the latest price pair and timestamp for a market.
func (pc *PriceCache) SetPrice(ctx context.Context, marketID string, p MarketPrice) error {
	key := priceKey(marketID)
	fields := map[string]interface{}{
		"price_yes": strconv.FormatInt(p.PriceYes, 10),
		"price_no":  strconv.FormatInt(p.PriceNo, 10),
		"ts":        strconv.FormatInt(p.At.UnixNano(), 10),
	}
	if err := pc.rdb.HSet(ctx, key, fields).Err(); err != nil {
		return fmt.Errorf("redis: set price %s: %w", marketID, err)
	}
	return nil
}

// GetPrice retrieves the latest price pair for a market. It returns
// domain.ErrNotFound when the market has no cached price.
func (pc *PriceCache) GetPrice(ctx context.Context, marketID string) (MarketPrice, error) {
	key := priceKey(marketID)
	vals, err := pc.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return MarketPrice{}, fmt.Errorf("redis: get price %s: %w", marketID, err)
	}
	if len(vals) == 0 {
		return MarketPrice{}, domain.ErrNotFound
	}

	p, err := parsePriceFields(vals)
	if err != nil {
		return MarketPrice{}, fmt.Errorf("redis: price %s: %w", marketID, err)
	}
	return p, nil
}

// GetPrices retrieves the latest price pairs for multiple markets using a
// pipeline. Markets with no cached price are silently omitted.
func (pc *PriceCache) GetPrices(ctx context.Context, marketIDs []string) (map[string]MarketPrice, error) {
	if len(marketIDs) == 0 {
		return map[string]MarketPrice{}, nil
	}

	pipe := pc.rdb.Pipeline()
	cmds := make(map[string]*redis.MapStringStringCmd, len(marketIDs))
	for _, id := range marketIDs {
		cmds[id] = pipe.HGetAll(ctx, priceKey(id))
	}

	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis: get prices pipeline: %w", err)
	}

	result := make(map[string]MarketPrice, len(marketIDs))
	for id, cmd := range cmds {
		vals, err := cmd.Result()
		if err != nil || len(vals) == 0 {
			continue
		}
		p, err := parsePriceFields(vals)
		if err != nil {
			continue
		}
		result[id] = p
	}

	return result, nil
}

func parsePriceFields(vals map[string]string) (MarketPrice, error) {
	var p MarketPrice
	yesStr, ok := vals["price_yes"]
	if !ok {
		return MarketPrice{}, domain.ErrNotFound
	}
	yes, err := strconv.ParseInt(yesStr, 10, 64)
	if err != nil {
		return MarketPrice{}, fmt.Errorf("parse price_yes: %w", err)
	}
	noStr, ok := vals["price_no"]
	if !ok {
		return MarketPrice{}, domain.ErrNotFound
	}
	no, err := strconv.ParseInt(noStr, 10, 64)
	if err != nil {
		return MarketPrice{}, fmt.Errorf("parse price_no: %w", err)
	}
	tsStr, ok := vals["ts"]
	if !ok {
		return MarketPrice{}, domain.ErrNotFound
	}
	tsNano, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return MarketPrice{}, fmt.Errorf("parse ts: %w", err)
	}
	p.PriceYes = yes
	p.PriceNo = no
	p.At = time.Unix(0, tsNano).UTC()
	return p, nil
}
