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

package main

import (
	"context"
	"os/signal"
	"syscall"

	"bitcoin-tipjar-go/internal/common"
	"bitcoin-tipjar-go/internal/config"
	"bitcoin-tipjar-go/internal/server"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		_, _ = zap.NewProduction()
		zap.L().Fatal("Failed to load configuration", zap.Error(err))
	}

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	zap.L().Info("Starting tip jar forwarding server",
		zap.String("listen_addr", cfg.Server.ListenAddr),
		zap.String("store_backend", cfg.Store.Backend))

	replay, err := common.NewReplayStore(ctx, cfg.Store)
	if err != nil {
		zap.L().Fatal("Failed to initialize idempotency store", zap.Error(err))
	}
	defer replay.Close()

	srv := server.New(cfg, replay)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return srv.Run(groupCtx)
	})

	if err := group.Wait(); err != nil {
		zap.L().Fatal("Server exited with error", zap.Error(err))
	}

	zap.L().Info("Server stopped gracefully")
}
