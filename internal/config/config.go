/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"bitcoin-tipjar-go/internal/models"

	"github.com/shopspring/decimal"
)

func Load() (*models.Config, error) {
	voltageTimeout, err := getEnvDuration("VOLTAGE_REQUEST_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}

	freshnessWindow, err := getEnvDuration("RATE_FRESHNESS_WINDOW", 60*time.Second)
	if err != nil {
		return nil, err
	}

	rateTimeout, err := getEnvDuration("RATE_REQUEST_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}

	fallbackPrice, err := getEnvDecimal("RATE_FALLBACK_PRICE_USD", decimal.Zero)
	if err != nil {
		return nil, err
	}

	instructionsInterval, err := getEnvDuration("INSTRUCTIONS_POLL_INTERVAL", time.Second)
	if err != nil {
		return nil, err
	}

	settlementInterval, err := getEnvDuration("SETTLEMENT_POLL_INTERVAL", time.Second)
	if err != nil {
		return nil, err
	}

	upstreamTimeout, err := getEnvDuration("UPSTREAM_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}

	shutdownTimeout, err := getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}

	purgeInterval, err := getEnvDuration("IDEMPOTENCY_PURGE_INTERVAL", 15*time.Minute)
	if err != nil {
		return nil, err
	}

	storeTtl, err := getEnvDuration("IDEMPOTENCY_TTL", 24*time.Hour)
	if err != nil {
		return nil, err
	}

	connMaxLifetime, err := getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute)
	if err != nil {
		return nil, err
	}

	connMaxIdleTime, err := getEnvDuration("DB_CONN_MAX_IDLE_TIME", 30*time.Second)
	if err != nil {
		return nil, err
	}

	pingTimeout, err := getEnvDuration("DB_PING_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}

	return &models.Config{
		Voltage: models.VoltageConfig{
			BaseUrl:        getEnvString("VOLTAGE_API_URL", "https://voltageapi.com/v1"),
			ApiKey:         getEnvString("VOLTAGE_API_KEY", ""),
			OrgId:          getEnvString("VOLTAGE_ORG_ID", ""),
			EnvId:          getEnvString("VOLTAGE_ENV_ID", ""),
			WalletId:       getEnvString("VOLTAGE_WALLET_ID", ""),
			PaymentKind:    models.PaymentKind(getEnvString("VOLTAGE_PAYMENT_KIND", string(models.PaymentKindBolt11))),
			RequestTimeout: voltageTimeout,
		},
		Rates: models.RatesConfig{
			TickerUrl:        getEnvString("TICKER_URL", "https://api.kraken.com/0/public/Ticker?pair=XBTUSD"),
			FreshnessWindow:  freshnessWindow,
			RequestTimeout:   rateTimeout,
			FallbackPriceUsd: fallbackPrice,
		},
		Polling: models.PollingConfig{
			Instructions: models.PollBudget{
				Interval:    instructionsInterval,
				MaxAttempts: getEnvInt("INSTRUCTIONS_POLL_MAX_ATTEMPTS", 30),
			},
			Settlement: models.PollBudget{
				Interval:    settlementInterval,
				MaxAttempts: getEnvInt("SETTLEMENT_POLL_MAX_ATTEMPTS", 300),
			},
		},
		Server: models.ServerConfig{
			ListenAddr:      getEnvString("LISTEN_ADDR", ":8787"),
			CorsEnabled:     getEnvBool("CORS_ENABLED", true),
			UpstreamTimeout: upstreamTimeout,
			ShutdownTimeout: shutdownTimeout,
			PurgeInterval:   purgeInterval,
		},
		Store: models.StoreConfig{
			Backend:         getEnvString("IDEMPOTENCY_BACKEND", "memory"),
			Path:            getEnvString("IDEMPOTENCY_DB_PATH", "idempotency.db"),
			Ttl:             storeTtl,
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: connMaxLifetime,
			ConnMaxIdleTime: connMaxIdleTime,
			PingTimeout:     pingTimeout,
		},
		TipsFile: getEnvString("TIP_OPTIONS_FILE", "tipjar.yaml"),
	}, nil
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	if value := os.Getenv(key); value != "" {
		duration, err := time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("invalid duration for %s: %q (%w)", key, value, err)
		}
		return duration, nil
	}
	return defaultValue, nil
}

func getEnvDecimal(key string, defaultValue decimal.Decimal) (decimal.Decimal, error) {
	if value := os.Getenv(key); value != "" {
		d, err := decimal.NewFromString(value)
		if err != nil {
			return decimal.Zero, fmt.Errorf("invalid decimal for %s: %q (%w)", key, value, err)
		}
		return d, nil
	}
	return defaultValue, nil
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
