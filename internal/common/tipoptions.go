package common

import (
	"fmt"
	"os"
	"path/filepath"

	"bitcoin-tipjar-go/internal/models"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v2"
)

type tipOptionEntry struct {
	AmountUsd string `yaml:"amount_usd"`
	Emoji     string `yaml:"emoji"`
	Message   string `yaml:"message"`
}

type tipJarFile struct {
	Creator     string           `yaml:"creator"`
	Tagline     string           `yaml:"tagline"`
	AllowCustom bool             `yaml:"allow_custom"`
	Options     []tipOptionEntry `yaml:"options"`
}

// TipJarConfig describes the jar presented to visitors: who the tips go
// to and which preset amounts are offered.
type TipJarConfig struct {
	Creator     string
	Tagline     string
	AllowCustom bool
	Options     []models.TipOption
}

func LoadTipJarConfig(tipsFile string) (*TipJarConfig, error) {
	var tipsPath string
	if filepath.IsAbs(tipsFile) {
		tipsPath = tipsFile
	} else {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		tipsPath = filepath.Join(wd, tipsFile)
	}

	data, err := os.ReadFile(tipsPath)
	if err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", tipsFile, err)
	}

	var raw tipJarFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("unable to parse %s: %w", tipsFile, err)
	}

	if raw.Creator == "" {
		return nil, fmt.Errorf("%s missing creator", tipsFile)
	}
	if len(raw.Options) == 0 {
		return nil, fmt.Errorf("%s defines no tip options", tipsFile)
	}

	options := make([]models.TipOption, len(raw.Options))
	for i, entry := range raw.Options {
		if entry.AmountUsd == "" {
			return nil, fmt.Errorf("tip option at index %d missing amount_usd", i)
		}
		amount, err := decimal.NewFromString(entry.AmountUsd)
		if err != nil {
			return nil, fmt.Errorf("tip option at index %d has invalid amount_usd: %w", i, err)
		}
		if !amount.IsPositive() {
			return nil, fmt.Errorf("tip option at index %d must have a positive amount", i)
		}
		options[i] = models.TipOption{
			AmountUsd: amount,
			Emoji:     entry.Emoji,
			Message:   entry.Message,
		}
	}

	return &TipJarConfig{
		Creator:     raw.Creator,
		Tagline:     raw.Tagline,
		AllowCustom: raw.AllowCustom,
		Options:     options,
	}, nil
}
