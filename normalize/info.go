package normalize

import "gitlab.com/nunet/nosana-node-monitor/models"

// Info holds the fields taken from the node-info document.
type Info struct {
	State         *string
	Uptime        *float64
	Version       *string
	Country       *string
	Network       models.NetworkMetrics
	MarketAddress *string
}

var infoFields = struct {
	State         Candidates
	Uptime        Candidates
	Version       Candidates
	Country       Candidates
	Ping          Candidates
	Download      Candidates
	Upload        Candidates
	MarketAddress Candidates
}{
	State:   Paths(Path{"state"}, Path{"status"}, Path{"info", "state"}, Path{"info", "status"}),
	Uptime:  Paths(Path{"uptime"}, Path{"info", "uptime"}, Path{"uptime_seconds"}),
	Version: Paths(Path{"info", "version"}, Path{"version"}, Path{"info", "nodeVersion"}),
	Country: Paths(Path{"info", "country"}, Path{"country"}),
	Ping: Paths(
		Path{"info", "network", "ping_ms"},
		Path{"network", "ping_ms"},
		Path{"info", "network", "ping"},
	),
	Download: Paths(
		Path{"info", "network", "download_mbps"},
		Path{"network", "download_mbps"},
		Path{"info", "network", "download"},
	),
	Upload: Paths(
		Path{"info", "network", "upload_mbps"},
		Path{"network", "upload_mbps"},
		Path{"info", "network", "upload"},
	),
	MarketAddress: Paths(
		Path{"marketAddress"},
		Path{"market_address"},
		Path{"market"},
		Path{"info", "marketAddress"},
		Path{"info", "market"},
	),
}

// NormalizeInfo extracts the canonical info fields from a node-info document.
func NormalizeInfo(raw []byte) Info {
	if len(raw) == 0 {
		return Info{}
	}
	return Info{
		State:   infoFields.State.String(raw),
		Uptime:  infoFields.Uptime.Float(raw),
		Version: infoFields.Version.String(raw),
		Country: infoFields.Country.String(raw),
		Network: models.NetworkMetrics{
			PingMs:       infoFields.Ping.Float(raw),
			DownloadMbps: infoFields.Download.Float(raw),
			UploadMbps:   infoFields.Upload.Float(raw),
		},
		MarketAddress: infoFields.MarketAddress.String(raw),
	}
}
