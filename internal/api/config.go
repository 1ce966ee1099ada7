package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"minidao/internal/config"
)

// ConfigManager 配置管理器
//
// 仅在启用数据库配置源时挂载，提供会话/事件/系统配置的
// 读取与更新接口。
type ConfigManager struct {
	dbConfig *config.DatabaseConfig
	logger   *logrus.Logger
}

// NewConfigManager 创建配置管理器
func NewConfigManager(dbConfig *config.DatabaseConfig, logger *logrus.Logger) *ConfigManager {
	return &ConfigManager{
		dbConfig: dbConfig,
		logger:   logger,
	}
}

// RegisterRoutes 挂载配置管理路由
func (cm *ConfigManager) RegisterRoutes(group *gin.RouterGroup) {
	group.GET("/config/:type", cm.GetConfig)
	group.PUT("/config/:type", cm.UpdateConfig)
	group.GET("/networks", cm.GetNetworks)
}

// GetConfig 获取配置
func (cm *ConfigManager) GetConfig(c *gin.Context) {
	configType := c.Param("type")
	key := c.Query("key")

	if key == "" {
		configs, err := cm.dbConfig.ListConfigs(configType)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "获取配置失败",
				"message": err.Error(),
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"config_type": configType,
			"configs":     configs,
		})
		return
	}

	value, err := cm.dbConfig.GetConfig(configType, key)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "配置不存在",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"config_type": configType,
		"key":         key,
		"value":       value,
	})
}

// UpdateConfig 更新配置
func (cm *ConfigManager) UpdateConfig(c *gin.Context) {
	configType := c.Param("type")

	var req struct {
		Key   string `json:"key" binding:"required"`
		Value string `json:"value" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "请求参数错误",
			"message": err.Error(),
		})
		return
	}

	if err := cm.dbConfig.UpdateConfig(configType, req.Key, req.Value); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "更新配置失败",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "配置更新成功",
		"config": gin.H{
			"type":  configType,
			"key":   req.Key,
			"value": req.Value,
		},
	})
}

// GetNetworks 获取网络配置列表
func (cm *ConfigManager) GetNetworks(c *gin.Context) {
	query := `SELECT id, name, indexer_url, timeout_seconds, priority, is_active FROM dao_networks ORDER BY priority`
	rows, err := cm.dbConfig.DB.Query(query)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "获取网络配置失败",
			"message": err.Error(),
		})
		return
	}
	defer rows.Close()

	var networks []gin.H
	for rows.Next() {
		var id, timeoutSeconds, priority int
		var name, indexerURL string
		var isActive bool

		err := rows.Scan(&id, &name, &indexerURL, &timeoutSeconds, &priority, &isActive)
		if err != nil {
			continue
		}

		networks = append(networks, gin.H{
			"id":              id,
			"name":            name,
			"indexer_url":     indexerURL,
			"timeout_seconds": timeoutSeconds,
			"priority":        priority,
			"is_active":       isActive,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"networks": networks,
	})
}
