package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"minidao/internal/errors"
	"minidao/internal/session"
	"minidao/pkg/models"
)

// Server API服务器
//
// 将会话控制器的快照与意图暴露为HTTP接口。控制器自身
// 串行化变更操作，服务器不再额外加锁。
type Server struct {
	controller    *session.Controller
	logger        *logrus.Logger
	logManager    *LogManager
	configManager *ConfigManager
	server        *http.Server
	host          string
	port          int
}

// NewServer 创建API服务器
func NewServer(controller *session.Controller, logger *logrus.Logger, host string, port int) *Server {
	logManager := NewLogManager(1000) // 最多保存1000条日志
	logger.AddHook(NewLogHook(logManager))

	return &Server{
		controller: controller,
		logger:     logger,
		logManager: logManager,
		host:       host,
		port:       port,
	}
}

// SetConfigManager 挂载配置管理接口（启用数据库配置源时），须在Start前调用
func (s *Server) SetConfigManager(cm *ConfigManager) {
	s.configManager = cm
}

// Start 启动API服务器
func (s *Server) Start() error {
	gin.SetMode(gin.ReleaseMode)
	router := gin.Default()

	// CORS中间件
	router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	s.setupRoutes(router)

	s.server = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.host, s.port),
		Handler: router,
	}

	s.logger.Infof("API服务器启动在 %s:%d", s.host, s.port)
	return s.server.ListenAndServe()
}

// Stop 停止API服务器
func (s *Server) Stop() error {
	if s.server != nil {
		return s.server.Shutdown(context.Background())
	}
	return nil
}

// setupRoutes 设置路由
func (s *Server) setupRoutes(router *gin.Engine) {
	// 健康检查
	router.GET("/health", s.healthCheck)

	api := router.Group("/api/v1")
	{
		// 会话状态
		api.GET("/snapshot", s.getSnapshot)

		// 合约与钱包
		api.POST("/contract/select", s.selectContract)
		api.GET("/contract/similar", s.similarContracts)
		api.GET("/contract/recent", s.recentContracts)
		api.POST("/wallet/connect", s.connectWallet)
		api.POST("/wallet/disconnect", s.disconnectWallet)

		// 提案
		api.POST("/proposals", s.submitProposal)
		api.POST("/proposals/:id/vote", s.voteProposal)
		api.POST("/proposals/:id/execute", s.executeProposal)

		// 部署与上传
		api.POST("/originate", s.originate)
		api.POST("/upload/metadata", s.uploadMetadata)
		api.POST("/upload/file", s.uploadFile)

		// 消息
		api.POST("/message/dismiss", s.dismissMessage)

		// 日志管理
		api.GET("/logs", s.getLogs)
		api.DELETE("/logs", s.clearLogs)

		// 配置管理（仅数据库配置源）
		if s.configManager != nil {
			s.configManager.RegisterRoutes(api)
		}
	}
}

// healthCheck 健康检查
func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
		"service":   "minidao-api",
	})
}

// getSnapshot 获取当前会话快照
func (s *Server) getSnapshot(c *gin.Context) {
	c.JSON(http.StatusOK, s.controller.Snapshot())
}

// selectContract 选中合约
func (s *Server) selectContract(c *gin.Context) {
	var req struct {
		Address string `json:"address" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.controller.SelectContract(c.Request.Context(), req.Address); err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":  "合约已选中",
		"snapshot": s.controller.Snapshot(),
	})
}

// similarContracts 发现同代码合约的其他部署
func (s *Server) similarContracts(c *gin.Context) {
	addresses, err := s.controller.SimilarContracts(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"contracts": addresses})
}

// recentContracts 最近使用过的合约地址
func (s *Server) recentContracts(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"contracts": s.controller.RecentContracts()})
}

// connectWallet 连接钱包
func (s *Server) connectWallet(c *gin.Context) {
	if err := s.controller.ConnectWallet(c.Request.Context()); err != nil {
		s.writeError(c, err)
		return
	}

	snap := s.controller.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"connected": snap.Connected(),
		"identity":  snap.Identity,
	})
}

// disconnectWallet 断开钱包
func (s *Server) disconnectWallet(c *gin.Context) {
	if err := s.controller.DisconnectWallet(c.Request.Context()); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "钱包已断开"})
}

// proposalRequest 提案提交请求
type proposalRequest struct {
	Kind    models.ProposalKind `json:"kind" binding:"required"`
	Payload json.RawMessage     `json:"payload" binding:"required"`
}

// decodePayload 按类型解码提案负载
func decodePayload(kind models.ProposalKind, raw json.RawMessage) (models.ProposalPayload, error) {
	switch kind {
	case models.KindText:
		var p models.TextPayload
		return p, json.Unmarshal(raw, &p)
	case models.KindTransferMutez:
		var p models.TransferMutezPayload
		return p, json.Unmarshal(raw, &p)
	case models.KindTransferToken:
		var p models.TransferTokenPayload
		return p, json.Unmarshal(raw, &p)
	case models.KindMinimumVotes:
		var p models.MinimumVotesPayload
		return p, json.Unmarshal(raw, &p)
	case models.KindExpirationTime:
		var p models.ExpirationTimePayload
		return p, json.Unmarshal(raw, &p)
	case models.KindAddUser:
		var p models.AddUserPayload
		return p, json.Unmarshal(raw, &p)
	case models.KindRemoveUser:
		var p models.RemoveUserPayload
		return p, json.Unmarshal(raw, &p)
	case models.KindLambda:
		var p models.LambdaPayload
		return p, json.Unmarshal(raw, &p)
	default:
		return nil, fmt.Errorf("未知的提案类型: %s", kind)
	}
}

// submitProposal 提交提案
func (s *Server) submitProposal(c *gin.Context) {
	var req proposalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	payload, err := decodePayload(req.Kind, req.Payload)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.controller.SubmitProposal(c.Request.Context(), payload); err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":  "提案已提交并确认",
		"snapshot": s.controller.Snapshot(),
	})
}

// voteProposal 对提案投票
func (s *Server) voteProposal(c *gin.Context) {
	proposalID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "提案ID无效"})
		return
	}

	var req struct {
		Approve *bool `json:"approve" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.controller.VoteProposal(c.Request.Context(), proposalID, *req.Approve); err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":  "投票已确认",
		"snapshot": s.controller.Snapshot(),
	})
}

// executeProposal 执行提案
func (s *Server) executeProposal(c *gin.Context) {
	proposalID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "提案ID无效"})
		return
	}

	if err := s.controller.ExecuteProposal(c.Request.Context(), proposalID); err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":  "提案已执行",
		"snapshot": s.controller.Snapshot(),
	})
}

// originate 部署新合约
func (s *Server) originate(c *gin.Context) {
	var params models.OriginateParams
	if err := c.ShouldBindJSON(&params); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	address, err := s.controller.Originate(c.Request.Context(), params)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "合约已部署",
		"address": address,
	})
}

// uploadMetadata 上传JSON元数据
func (s *Server) uploadMetadata(c *gin.Context) {
	var metadata map[string]interface{}
	if err := c.ShouldBindJSON(&metadata); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cid, err := s.controller.UploadMetadata(c.Request.Context(), metadata)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"cid": cid, "uri": "ipfs://" + cid})
}

// uploadFile 上传原始内容
func (s *Server) uploadFile(c *gin.Context) {
	content, err := io.ReadAll(c.Request.Body)
	if err != nil || len(content) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请求体为空"})
		return
	}

	cid, err := s.controller.UploadFile(c.Request.Context(), content)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"cid": cid, "uri": "ipfs://" + cid})
}

// dismissMessage 关闭当前临时消息
func (s *Server) dismissMessage(c *gin.Context) {
	s.controller.DismissMessage()
	c.JSON(http.StatusOK, gin.H{"message": "已关闭"})
}

// writeError 按错误类型映射HTTP状态码
func (s *Server) writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.IsValidation(err):
		status = http.StatusUnprocessableEntity
	case errors.IsConfirmation(err):
		status = http.StatusGatewayTimeout
	case errors.IsSubmission(err) || errors.IsUpload(err):
		status = http.StatusBadGateway
	}

	c.JSON(status, gin.H{"error": err.Error()})
}

// getLogs 获取日志
func (s *Server) getLogs(c *gin.Context) {
	level := c.Query("level")
	pageStr := c.Query("page")
	pageSizeStr := c.Query("pageSize")

	page := 1
	if pageStr != "" {
		if p, err := strconv.Atoi(pageStr); err == nil && p > 0 {
			page = p
		}
	}

	pageSize := 20
	if pageSizeStr != "" {
		if ps, err := strconv.Atoi(pageSizeStr); err == nil && ps > 0 {
			pageSize = ps
		}
	}

	logs, total := s.logManager.GetLogsWithPagination(level, page, pageSize)

	c.JSON(http.StatusOK, gin.H{
		"logs":     logs,
		"total":    total,
		"page":     page,
		"pageSize": pageSize,
		"level":    level,
	})
}

// clearLogs 清空日志
func (s *Server) clearLogs(c *gin.Context) {
	s.logManager.ClearLogs()
	c.JSON(http.StatusOK, gin.H{"message": "日志已清空"})
}
