package transport

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// Defaults for reaching an in-cluster dashboard API.
const (
	DefaultServiceNamespace = "kubernetes-dashboard"
	DefaultService          = "kubernetes-dashboard-api:8000"
)

// ErrNoService is returned when KubeConfig names no service.
var ErrNoService = errors.New("transport: kube getter needs a service name")

// KubeConfig selects the cluster and the dashboard API service to proxy to.
type KubeConfig struct {
	// Kubeconfig is the path to a kubeconfig file. If empty, the default
	// loading rules apply (KUBECONFIG env, ~/.kube/config, in-cluster).
	Kubeconfig string

	// Context is the kubeconfig context. Empty uses the current context.
	Context string

	// ServiceNamespace is the namespace the dashboard API service lives in.
	ServiceNamespace string

	// Service is the service reference, "name" or "name:port", optionally
	// prefixed with a scheme ("https:name:port").
	Service string
}

// restClientFactory builds the REST client for a KubeConfig. It is a function
// type so tests can point the getter at an httptest server.
type restClientFactory func(cfg KubeConfig) (rest.Interface, error)

func defaultRESTClientFactory(cfg KubeConfig) (rest.Interface, error) {
	rules := clientcmd.NewDefaultClientConfigLoadingRules()
	if cfg.Kubeconfig != "" {
		rules.ExplicitPath = cfg.Kubeconfig
	}
	overrides := &clientcmd.ConfigOverrides{}
	if cfg.Context != "" {
		overrides.CurrentContext = cfg.Context
	}
	restCfg, err := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(rules, overrides).ClientConfig()
	if err != nil {
		return nil, fmt.Errorf("build client config: %w", err)
	}
	return restClientForConfig(restCfg)
}

func restClientForConfig(restCfg *rest.Config) (rest.Interface, error) {
	cs, err := kubernetes.NewForConfig(restCfg)
	if err != nil {
		return nil, fmt.Errorf("create clientset: %w", err)
	}
	return cs.CoreV1().RESTClient(), nil
}

// KubeGetter reaches the dashboard API through the Kubernetes API server's
// service proxy, authenticating with the kubeconfig credentials.
type KubeGetter struct {
	client rest.Interface
	prefix string
}

// NewKubeGetter builds a KubeGetter from kubeconfig.
func NewKubeGetter(cfg KubeConfig) (*KubeGetter, error) {
	return newKubeGetterWithFactory(cfg, defaultRESTClientFactory)
}

func newKubeGetterWithFactory(cfg KubeConfig, factory restClientFactory) (*KubeGetter, error) {
	if cfg.Service == "" {
		return nil, ErrNoService
	}
	if cfg.ServiceNamespace == "" {
		cfg.ServiceNamespace = DefaultServiceNamespace
	}
	client, err := factory(cfg)
	if err != nil {
		return nil, err
	}
	return &KubeGetter{client: client, prefix: ProxyPrefix(cfg.ServiceNamespace, cfg.Service)}, nil
}

// ProxyPrefix is the API server path proxying to service in namespace.
func ProxyPrefix(namespace, service string) string {
	return "/api/v1/namespaces/" + namespace + "/services/" + service + "/proxy/"
}

// Get issues GET {proxyPrefix}{endpoint}?{params} through the API server.
func (g *KubeGetter) Get(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	req := g.client.Get().AbsPath(g.prefix + strings.TrimLeft(endpoint, "/"))
	for k, vs := range params {
		for _, v := range vs {
			req = req.Param(k, v)
		}
	}
	data, err := req.DoRaw(ctx)
	if err != nil {
		return nil, fmt.Errorf("GET %s via apiserver proxy: %w", endpoint, err)
	}
	return data, nil
}
