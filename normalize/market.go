package normalize

import "gitlab.com/nunet/nosana-node-monitor/models"

// marketAddressKeys are tried in order against every market record.
var marketAddressKeys = Keys("address", "marketAddress", "market_address", "id")

var marketFields = struct {
	Name               Candidates
	Type               Candidates
	Slug               Candidates
	NosRewardPerSecond Candidates
	USDRewardPerHour   Candidates
}{
	Name:               Keys("name", "marketName", "market_name", "title"),
	Type:               Keys("type", "marketType", "market_type"),
	Slug:               Keys("slug", "marketSlug", "market_slug"),
	NosRewardPerSecond: Keys("nosRewardPerSecond", "nos_reward_per_second", "nosReward", "jobPrice"),
	USDRewardPerHour:   Keys("usdRewardPerHour", "usd_reward_per_hour", "usdReward", "pricePerHour"),
}

// marketListKeys locate the record array when the directory is wrapped in an object.
var marketListKeys = Keys("markets", "data", "items")

// MarketRecords splits a market directory document into its object records.
func MarketRecords(raw []byte) [][]byte {
	if len(raw) == 0 {
		return [][]byte{}
	}
	return Objects(raw, marketListKeys)
}

// ResolveMarket finds the display fields for address in records. The first
// matching record wins; if it has no name, later matches may fill the fields
// it left empty. Without a match every field except Address is nil.
func ResolveMarket(address string, records [][]byte) models.Market {
	if address == "" {
		return models.Market{}
	}
	market := models.Market{Address: &address}

	for _, rec := range records {
		if !matchesAddress(rec, address) {
			continue
		}
		fillString(&market.Name, marketFields.Name, rec)
		fillString(&market.Type, marketFields.Type, rec)
		fillString(&market.Slug, marketFields.Slug, rec)
		fillFloat(&market.NosRewardPerSecond, marketFields.NosRewardPerSecond, rec)
		fillFloat(&market.USDRewardPerHour, marketFields.USDRewardPerHour, rec)
		if market.Name != nil {
			break
		}
	}
	return market
}

func matchesAddress(rec []byte, address string) bool {
	for _, p := range marketAddressKeys {
		if v := (Candidates{p}).String(rec); v != nil && *v == address {
			return true
		}
	}
	return false
}

func fillString(dst **string, c Candidates, rec []byte) {
	if *dst == nil {
		*dst = c.String(rec)
	}
}

func fillFloat(dst **float64, c Candidates, rec []byte) {
	if *dst == nil {
		*dst = c.Float(rec)
	}
}
