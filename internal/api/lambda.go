package api

import (
	"context"

	"github.com/aws/aws-lambda-go/events"
	chiadapter "github.com/awslabs/aws-lambda-go-api-proxy/chi"
)

// LambdaAdapter bridges API Gateway proxy events to the chi router so the
// same handler chain serves both deployment modes.
type LambdaAdapter struct {
	proxy *chiadapter.ChiLambda
}

// NewLambdaAdapter wraps a mounted server. MountRoutes must have been called.
func NewLambdaAdapter(s *Server) *LambdaAdapter {
	return &LambdaAdapter{proxy: chiadapter.New(s.Router())}
}

// Handle proxies one API Gateway event through the router.
func (a *LambdaAdapter) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	return a.proxy.ProxyWithContext(ctx, req)
}
