package ledger

import (
	"strings"

	"github.com/tidwall/gjson"

	"gitlab.com/nunet/nosana-node-monitor/models"
)

const maxPayloadDepth = 4

var (
	resultContainerPaths = []string{"jobResult", "result", "results"}
	opListPaths          = []string{"opStates", "ops", "operations"}
	opIDPaths            = []string{"operationId", "id", "name"}
	opPayloadPaths       = []string{"results", "result", "output"}
	modelPaths           = []string{"model", "model_id", "modelId"}
	meanTPSPaths         = []string{"mean_tokens_per_second", "meanTokensPerSecond", "tokens_per_second_mean", "average_tokens_per_second"}
)

// ExtractBenchmark looks for a successful benchmarkOp operation in the job's
// result and returns the model and mean throughput it reported. It returns
// nil unless both values are present with the expected types.
func ExtractBenchmark(job []byte, benchmarkOp string) *models.BenchmarkResult {
	if benchmarkOp == "" || !gjson.ValidBytes(job) {
		return nil
	}
	root := gjson.ParseBytes(job)

	for _, cp := range resultContainerPaths {
		container := decodeEmbedded(root.Get(cp))
		if !container.IsObject() {
			continue
		}
		for _, lp := range opListPaths {
			ops := container.Get(lp)
			if !ops.IsArray() {
				continue
			}
			var found *models.BenchmarkResult
			ops.ForEach(func(_, op gjson.Result) bool {
				if !isSuccessfulOp(op, benchmarkOp) {
					return true
				}
				for _, pp := range opPayloadPaths {
					if b := benchmarkFrom(op.Get(pp), 0); b != nil {
						found = b
						return false
					}
				}
				return true
			})
			if found != nil {
				return found
			}
		}
	}
	return nil
}

func isSuccessfulOp(op gjson.Result, benchmarkOp string) bool {
	if !op.IsObject() || !strings.EqualFold(op.Get("status").String(), "success") {
		return false
	}
	for _, p := range opIDPaths {
		if id := op.Get(p); id.Type == gjson.String && id.Str == benchmarkOp {
			return true
		}
	}
	return false
}

// benchmarkFrom searches an op payload. Payloads may be objects, JSON encoded
// into strings, or arrays of log lines holding such strings.
func benchmarkFrom(v gjson.Result, depth int) *models.BenchmarkResult {
	if depth > maxPayloadDepth || !v.Exists() {
		return nil
	}
	v = decodeEmbedded(v)

	switch {
	case v.IsObject():
		if b := benchmarkFields(v); b != nil {
			return b
		}
		var found *models.BenchmarkResult
		v.ForEach(func(_, child gjson.Result) bool {
			found = benchmarkFrom(child, depth+1)
			return found == nil
		})
		return found
	case v.IsArray():
		// the last well-formed line wins, later output supersedes earlier
		items := v.Array()
		for i := len(items) - 1; i >= 0; i-- {
			if b := benchmarkFrom(items[i], depth+1); b != nil {
				return b
			}
		}
	}
	return nil
}

func benchmarkFields(obj gjson.Result) *models.BenchmarkResult {
	var model *string
	for _, p := range modelPaths {
		if m := obj.Get(p); m.Type == gjson.String && strings.TrimSpace(m.Str) != "" {
			s := strings.TrimSpace(m.Str)
			model = &s
			break
		}
	}
	if model == nil {
		return nil
	}
	for _, p := range meanTPSPaths {
		if n := obj.Get(p); n.Type == gjson.Number {
			return &models.BenchmarkResult{Model: *model, MeanTokensPerSecond: n.Num}
		}
	}
	return nil
}

// decodeEmbedded parses a string holding a JSON object or array; other
// values are returned unchanged.
func decodeEmbedded(v gjson.Result) gjson.Result {
	if v.Type != gjson.String {
		return v
	}
	s := strings.TrimSpace(v.Str)
	if (strings.HasPrefix(s, "{") || strings.HasPrefix(s, "[")) && gjson.Valid(s) {
		return gjson.Parse(s)
	}
	return v
}
