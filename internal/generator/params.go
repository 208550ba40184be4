package generator

import "portfolio-images/internal/config"

// ParamsFromConfig builds run parameters from the loaded configuration.
func ParamsFromConfig(cfg *config.Config) Params {
	return Params{
		SourcePath: cfg.SourcePath,
		OutputDir:  cfg.OutputDirectory,
		BaseName:   cfg.GetBaseName(),
		Widths:     append([]int(nil), cfg.Widths...),
		Encodings:  DefaultEncodings(cfg.Encoding.WebPQuality, cfg.Encoding.JPEGQuality),
		Filter:     ResampleFilter(cfg.Resize.Filter),
		AutoOrient: cfg.Resize.AutoOrient,
	}
}
