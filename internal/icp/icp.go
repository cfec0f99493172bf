// Package icp exposes the chain-side canister configuration to clients and
// probes the gateway's health. Signing and canister calls happen client-side;
// the server only hands out canister IDs and reports reachability.
package icp

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/qikhub/backend/config"
	"github.com/qikhub/backend/pkg/response"
)

// Gateway reports canister configuration and gateway health.
type Gateway struct {
	cfg    config.ICPConfig
	client *http.Client
	logger *zap.Logger
}

// NewGateway creates an ICP gateway facade.
func NewGateway(cfg config.ICPConfig, logger *zap.Logger) *Gateway {
	return &Gateway{
		cfg:    cfg,
		client: &http.Client{Timeout: 5 * time.Second},
		logger: logger,
	}
}

// RegisterRoutes mounts the chain config and status routes.
func (g *Gateway) RegisterRoutes(rg *gin.RouterGroup) {
	grp := rg.Group("/icp")
	grp.GET("/config", g.Config)
	grp.GET("/status", g.Status)
}

// CanisterConfig is the canister ID set clients need to talk to the chain.
type CanisterConfig struct {
	Host              string `json:"host"`
	AuthCanisterID    string `json:"authCanisterId"`
	EventCanisterID   string `json:"eventCanisterId"`
	AnalyticsCanister string `json:"analyticsCanisterId"`
	NFTCanisterID     string `json:"nftCanisterId"`
	WalletCanisterID  string `json:"walletCanisterId"`
	Mock              bool   `json:"mock"`
}

// Config returns the canister ID configuration.
func (g *Gateway) Config(c *gin.Context) {
	response.OK(c, CanisterConfig{
		Host:              g.cfg.Host,
		AuthCanisterID:    g.cfg.AuthCanisterID,
		EventCanisterID:   g.cfg.EventCanisterID,
		AnalyticsCanister: g.cfg.AnalyticsCanisterID,
		NFTCanisterID:     g.cfg.NFTCanisterID,
		WalletCanisterID:  g.cfg.WalletCanisterID,
		Mock:              g.cfg.Mock,
	})
}

// Status probes the gateway. In mock mode it always reports healthy, so local
// development does not need a replica running.
func (g *Gateway) Status(c *gin.Context) {
	if g.cfg.Mock {
		response.OK(c, gin.H{"status": "healthy", "mock": true})
		return
	}
	healthy, err := g.probe(c.Request.Context())
	if err != nil {
		g.logger.Warn("icp gateway probe failed", zap.Error(err), zap.String("host", g.cfg.Host))
	}
	if !healthy {
		response.ServiceUnavailable(c, "icp gateway unreachable")
		return
	}
	response.OK(c, gin.H{"status": "healthy", "mock": false})
}

func (g *Gateway) probe(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.cfg.Host+"/api/v2/status", nil)
	if err != nil {
		return false, err
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK, nil
}
