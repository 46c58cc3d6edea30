package main

import (
	"net"
	"os"
	"os/signal"
	"syscall"

	"google.golang.org/grpc"

	"bibxml/internal/app"
	"bibxml/internal/grpcserver"
	"bibxml/pkg/utils"
)

func main() {
	cfg, err := app.LoadConfig()
	logger := utils.NewLogger(os.Stdout, cfg.Server.LogLevel)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	a, err := app.New(cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	grpcCfg := utils.LoadGrpcConfig()
	listener, err := net.Listen("tcp", grpcCfg.Addr)
	if err != nil {
		logger.Error("grpc listen failed", "addr", grpcCfg.Addr, "error", err)
		os.Exit(1)
	}

	grpcServer := grpc.NewServer()
	grpcserver.RegisterResolverServer(grpcServer, grpcserver.NewServer(a.Engine, a.Refs, logger))

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("shutdown signal received", "signal", sig.String())
		grpcServer.GracefulStop()
	}()

	logger.Info("gRPC server listening", "addr", grpcCfg.Addr)
	if err := grpcServer.Serve(listener); err != nil {
		logger.Error("grpc server stopped", "error", err)
	}
}
