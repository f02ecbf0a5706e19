// internal/pkg/httpclient/client.go

package httpclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"orderflow/internal/pkg/apperr"
	"orderflow/internal/pkg/nacos"
	"orderflow/internal/pkg/resilience"
)

// Client 是一个可追踪、带熔断保护的服务间 HTTP 客户端。
// 实例地址通过 Nacos 发现，每个下游服务一个独立的 resilience.Guard。
type Client struct {
	Tracer     trace.Tracer
	HTTPClient *http.Client
	registry   *nacos.Client
	guards     map[string]*resilience.Guard
}

// errorBody 是被调方失败时返回的标准结构，只携带稳定错误码。
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewClient 创建一个新的客户端实例。
// guards 按下游服务名索引，在服务装配时构造并注入。
func NewClient(tracer trace.Tracer, registry *nacos.Client, guards map[string]*resilience.Guard) *Client {
	// 不设置 Timeout 字段，完全受控于每次请求传入的 context
	httpClient := &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 100,
		},
	}
	return &Client{
		Tracer:     tracer,
		HTTPClient: httpClient,
		registry:   registry,
		guards:     guards,
	}
}

// CallService 向名为 serviceName 的下游服务发起 POST 调用。
// 地址解析、限流熔断、重试和错误码映射都在这里完成。
func (c *Client) CallService(ctx context.Context, serviceName, path string, params url.Values) error {
	guard, ok := c.guards[serviceName]
	if !ok {
		return fmt.Errorf("no resilience guard configured for service %s", serviceName)
	}

	return guard.Do(ctx, func(ctx context.Context) error {
		ip, port, err := c.registry.DiscoverServiceInstance(serviceName)
		if err != nil {
			return err
		}
		serviceURL := fmt.Sprintf("http://%s:%d%s", ip, port, path)
		return c.Post(ctx, serviceURL, params)
	})
}

// CallServiceJSON 与 CallService 相同，但把 200 响应体解码进 out。
// 用于需要返回值的调用（例如创建支付单返回网关订单号）。
func (c *Client) CallServiceJSON(ctx context.Context, serviceName, path string, params url.Values, out interface{}) error {
	guard, ok := c.guards[serviceName]
	if !ok {
		return fmt.Errorf("no resilience guard configured for service %s", serviceName)
	}

	return guard.Do(ctx, func(ctx context.Context) error {
		ip, port, err := c.registry.DiscoverServiceInstance(serviceName)
		if err != nil {
			return err
		}
		serviceURL := fmt.Sprintf("http://%s:%d%s", ip, port, path)
		return c.post(ctx, serviceURL, params, out)
	})
}

// Post 向指定 URL 发起一次带追踪的 POST 请求。
func (c *Client) Post(ctx context.Context, serviceURL string, params url.Values) error {
	return c.post(ctx, serviceURL, params, nil)
}

func (c *Client) post(ctx context.Context, serviceURL string, params url.Values, out interface{}) error {
	parsedURL, err := url.Parse(serviceURL)
	if err != nil {
		return err
	}
	spanName := fmt.Sprintf("call-%s", strings.Split(parsedURL.Host, ":")[0])

	ctx, span := c.Tracer.Start(ctx, spanName, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	downstreamURL := *parsedURL
	q := downstreamURL.Query()
	for key, values := range params {
		for _, value := range values {
			q.Add(key, value)
		}
	}
	downstreamURL.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, "POST", downstreamURL.String(), nil)
	if err != nil {
		span.RecordError(err)
		return err
	}

	span.SetAttributes(
		attribute.String("http.url", downstreamURL.String()),
		attribute.String("http.method", "POST"),
	)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := decodeError(resp)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	if out != nil {
		if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(out); err != nil {
			span.RecordError(err)
			return fmt.Errorf("decode response from %s: %w", downstreamURL.Host, err)
		}
	}
	return nil
}

// decodeError 把被调方返回的错误体还原为带稳定错误码的错误。
// 解析不出来时退化为按 HTTP 状态码分类。
func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var body errorBody
	if err := json.Unmarshal(raw, &body); err == nil && body.Code != "" {
		return apperr.New(apperr.Code(body.Code), body.Message)
	}

	switch resp.StatusCode {
	case http.StatusConflict:
		return apperr.New(apperr.CodeDuplicateRequest, "conflicting request")
	case http.StatusTooManyRequests:
		return apperr.New(apperr.CodeRateLimited, "downstream rate limited")
	case http.StatusGatewayTimeout:
		return apperr.New(apperr.CodeTimeout, "downstream timed out")
	}
	return fmt.Errorf("service %s returned status %s", resp.Request.URL.Host, resp.Status)
}
