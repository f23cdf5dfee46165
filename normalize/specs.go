package normalize

import "gitlab.com/nunet/nosana-node-monitor/models"

var specsFields = struct {
	RAM           Candidates
	Disk          Candidates
	CPU           Candidates
	LogicalCores  Candidates
	PhysicalCores Candidates
	MemoryGPU     Candidates
	MarketAddress Candidates
	NodeVersion   Candidates
	CudaVersion   Candidates
	GPUs          Candidates
	Ping          Candidates
	Download      Candidates
	Upload        Candidates
	GPUModel      Candidates
	GPUMemory     Candidates
}{
	RAM:           Keys("ram", "ramMB", "ram_mb"),
	Disk:          Keys("diskSpace", "disk_space", "diskSpaceGB"),
	CPU:           Keys("cpu", "cpuModel", "cpu_model"),
	LogicalCores:  Keys("logicalCores", "logical_cores"),
	PhysicalCores: Keys("physicalCores", "physical_cores"),
	MemoryGPU:     Keys("memoryGPU", "memory_gpu", "gpuMemory"),
	MarketAddress: Keys("marketAddress", "market_address", "market"),
	NodeVersion:   Keys("nodeVersion", "node_version", "version"),
	CudaVersion:   Keys("cudaVersion", "cuda_version"),
	GPUs:          Keys("gpus", "GPUs"),
	Ping:          Paths(Path{"bandwidth", "ping"}, Path{"bandwidth", "ping_ms"}),
	Download:      Paths(Path{"bandwidth", "download"}, Path{"bandwidth", "download_mbps"}),
	Upload:        Paths(Path{"bandwidth", "upload"}, Path{"bandwidth", "upload_mbps"}),
	GPUModel:      Keys("gpu", "name", "model"),
	GPUMemory:     Keys("memory", "memoryMB", "memory_mb"),
}

// NormalizeSpecs extracts the canonical hardware description from a
// node-specs document. Missing or empty input yields an empty record.
func NormalizeSpecs(raw []byte) models.Specs {
	specs := models.EmptySpecs()
	if len(raw) == 0 {
		return specs
	}

	specs.RAMMB = specsFields.RAM.Float(raw)
	specs.DiskSpaceGB = specsFields.Disk.Float(raw)
	specs.CPU = specsFields.CPU.String(raw)
	specs.LogicalCores = specsFields.LogicalCores.Int(raw)
	specs.PhysicalCores = specsFields.PhysicalCores.Int(raw)
	specs.MemoryGPUMB = specsFields.MemoryGPU.Float(raw)
	specs.MarketAddress = specsFields.MarketAddress.String(raw)
	specs.NodeVersion = specsFields.NodeVersion.String(raw)
	specs.CudaVersion = specsFields.CudaVersion.String(raw)
	specs.Bandwidth = models.NetworkMetrics{
		PingMs:       specsFields.Ping.Float(raw),
		DownloadMbps: specsFields.Download.Float(raw),
		UploadMbps:   specsFields.Upload.Float(raw),
	}

	for _, gpu := range Objects(raw, specsFields.GPUs) {
		specs.GPUs = append(specs.GPUs, models.GPU{
			Model:    specsFields.GPUModel.String(gpu),
			MemoryMB: specsFields.GPUMemory.Float(gpu),
		})
	}
	if len(specs.GPUs) > 0 {
		specs.GPUModel = specs.GPUs[0].Model
	}
	return specs
}
