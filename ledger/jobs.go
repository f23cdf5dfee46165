package ledger

import (
	"gitlab.com/nunet/nosana-node-monitor/models"
	"gitlab.com/nunet/nosana-node-monitor/normalize"
)

var jobFields = struct {
	List      normalize.Candidates
	ID        normalize.Candidates
	TimeStart normalize.Candidates
	TimeEnd   normalize.Candidates
	Rate      normalize.Candidates
	State     normalize.Candidates
}{
	List:      normalize.Keys("jobs", "data", "items"),
	ID:        normalize.Keys("id", "address", "jobId", "job"),
	TimeStart: normalize.Keys("timeStart", "time_start", "startedAt"),
	TimeEnd:   normalize.Keys("timeEnd", "time_end", "endedAt"),
	Rate:      normalize.Keys("usdRewardPerHour", "usd_reward_per_hour", "price"),
	State:     normalize.Keys("state", "status"),
}

// observedJob is one job as reported by the job-history endpoint.
type observedJob struct {
	ID        string
	TimeStart int64
	TimeEnd   int64
	Rate      float64
	State     string
	Benchmark *models.BenchmarkResult
}

// finalized reports whether the job's end time is set and consistent with its start.
func (j observedJob) finalized() bool {
	return j.TimeEnd > 0 && j.TimeStart > 0 && j.TimeEnd >= j.TimeStart
}

// Accounting returns the runtime in seconds and the earned amount for a job.
// Both are zero unless the job is finalized.
func Accounting(timeStart, timeEnd int64, hourlyRate float64) (runtime, earned float64) {
	if !(timeEnd > 0 && timeStart > 0 && timeEnd >= timeStart) {
		return 0, 0
	}
	runtime = float64(timeEnd - timeStart)
	return runtime, runtime / 3600 * hourlyRate
}

// parseJobs returns at most limit jobs from a job-history document, in
// upstream order. Jobs without an id or start time are skipped.
func parseJobs(raw []byte, limit int, benchmarkOp string) []observedJob {
	var jobs []observedJob
	for _, obj := range normalize.Objects(raw, jobFields.List) {
		if limit > 0 && len(jobs) >= limit {
			break
		}
		id := jobFields.ID.String(obj)
		start := jobFields.TimeStart.Int64(obj)
		if id == nil || start <= 0 {
			continue
		}
		job := observedJob{
			ID:        *id,
			TimeStart: start,
			TimeEnd:   jobFields.TimeEnd.Int64(obj),
			Benchmark: ExtractBenchmark(obj, benchmarkOp),
		}
		if rate := jobFields.Rate.Float(obj); rate != nil {
			job.Rate = *rate
		}
		if state := jobFields.State.String(obj); state != nil {
			job.State = *state
		}
		jobs = append(jobs, job)
	}
	return jobs
}
