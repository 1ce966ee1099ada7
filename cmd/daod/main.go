package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"minidao/internal/api"
	"minidao/internal/chain"
	"minidao/internal/config"
	"minidao/internal/events"
	"minidao/internal/ipfs"
	"minidao/internal/session"
	"minidao/internal/shutdown"
	"minidao/internal/store"
	"minidao/internal/validation"
	"minidao/internal/wallet"
)

var (
	configFile     string
	contractScript string
	port           int
	verbose        bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "daod",
		Short: "多签DAO会话守护进程",
		Long:  `持有会话状态控制器并通过HTTP接口暴露快照与意图的守护进程`,
		RunE:  run,
	}

	rootCmd.Flags().StringVar(&configFile, "config", "configs/config.yaml", "配置文件路径")
	rootCmd.Flags().StringVar(&contractScript, "contract-script", "", "部署用合约代码文件（Micheline JSON）")
	rootCmd.Flags().IntVar(&port, "port", 0, "API服务端口（覆盖配置文件）")
	rootCmd.Flags().BoolVar(&verbose, "verbose", false, "详细输出")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "执行失败: %v\n", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	// 加载配置（数据库源优先，回退YAML）
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return fmt.Errorf("加载配置失败: %w", err)
	}
	if port > 0 {
		cfg.API.Port = port
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("配置校验失败: %w", err)
	}

	// 日志级别
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
	} else if level, err := logrus.ParseLevel(cfg.Logging.Level); err == nil {
		logger.SetLevel(level)
	}

	// 协作方客户端
	chainClient, err := chain.NewClient(cfg.Network.Indexer, logger)
	if err != nil {
		return fmt.Errorf("创建索引器客户端失败: %w", err)
	}

	walletClient, err := wallet.NewClient(cfg.Wallet, logger)
	if err != nil {
		return fmt.Errorf("创建钱包桥接客户端失败: %w", err)
	}

	uploader, err := ipfs.NewUploader(cfg.IPFS, logger)
	if err != nil {
		return fmt.Errorf("创建IPFS上传器失败: %w", err)
	}

	sessionStore, err := store.NewStore(cfg.Session.StorePath, logger)
	if err != nil {
		return fmt.Errorf("创建会话存储失败: %w", err)
	}

	sink, err := events.NewSink(cfg.Events, logger)
	if err != nil {
		return fmt.Errorf("创建事件输出器失败: %w", err)
	}

	// 部署用合约代码
	var script json.RawMessage
	if contractScript != "" {
		data, err := os.ReadFile(contractScript)
		if err != nil {
			return fmt.Errorf("读取合约代码失败: %w", err)
		}
		script = data
	}

	// 会话状态控制器
	controller := session.NewController(
		&session.Config{
			Network:           cfg.Network.Name,
			ConfirmationCount: cfg.Session.ConfirmationCount,
			ContractScript:    script,
			Pin:               cfg.IPFS.Pin,
			LogConfig:         cfg.Logging,
		},
		session.Deps{
			Query:     chainClient,
			Wallet:    walletClient,
			Confirmer: wallet.NewConfirmer(chainClient, logger),
			Uploader:  uploader,
			Store:     sessionStore,
			Events:    sink,
			Validator: validation.NewValidator(logger),
			Logger:    logger,
		},
	)

	// 恢复上次会话
	if err := controller.RestoreSelection(context.Background()); err != nil {
		logger.Warnf("恢复上次会话失败: %v", err)
	}

	// 优雅停机
	gs := shutdown.NewGracefulShutdown(0, logger)

	// API服务器
	server := api.NewServer(controller, logger, cfg.API.Host, cfg.API.Port)

	// 启用数据库配置源时挂载配置管理接口
	if dsn := os.Getenv("MINIDAO_DB_DSN"); dsn != "" {
		dbConfig, err := config.NewDatabaseConfig(dsn, logger)
		if err != nil {
			logger.Warnf("配置管理接口不可用: %v", err)
		} else {
			server.SetConfigManager(api.NewConfigManager(dbConfig, logger))
			gs.RegisterShutdownFunc("config_db", func(ctx context.Context) error {
				return dbConfig.Close()
			}, shutdown.OrderCloseStores)
		}
	}

	go func() {
		if err := server.Start(); err != nil {
			logger.Errorf("API服务器退出: %v", err)
		}
	}()

	gs.RegisterShutdownFunc("api_server", func(ctx context.Context) error {
		return server.Stop()
	}, shutdown.OrderStopAPI)
	gs.RegisterShutdownFunc("event_sink", func(ctx context.Context) error {
		return sink.Close()
	}, shutdown.OrderFlushEvents)
	gs.RegisterShutdownFunc("session_store", func(ctx context.Context) error {
		return sessionStore.Close()
	}, shutdown.OrderCloseStores)

	gs.WaitForShutdown()
	return nil
}
