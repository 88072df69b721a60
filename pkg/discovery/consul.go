package discovery

import (
	"fmt"
	"log"
	"strconv"

	"github.com/hashicorp/consul/api"

	"github.com/samancikme/fizika/internal/config"
)

type ServiceRegistry struct {
	client *api.Client
	server config.ServerConfig
}

func NewServiceRegistry(cfg *config.Config) (*ServiceRegistry, error) {
	consulConfig := api.DefaultConfig()
	consulConfig.Address = cfg.Consul.Address

	client, err := api.NewClient(consulConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Consul client: %v", err)
	}

	return &ServiceRegistry{
		client: client,
		server: cfg.Server,
	}, nil
}

func (sr *ServiceRegistry) registration() (*api.AgentServiceRegistration, error) {
	port, err := strconv.Atoi(sr.server.Port)
	if err != nil {
		return nil, fmt.Errorf("invalid port %q: %v", sr.server.Port, err)
	}
	return &api.AgentServiceRegistration{
		ID:      sr.server.ServiceID + "-http",
		Name:    sr.server.ServiceName,
		Port:    port,
		Address: sr.server.Address,
		Check: &api.AgentServiceCheck{
			HTTP:     fmt.Sprintf("http://%s:%s/health", sr.server.Address, sr.server.Port),
			Interval: "10s",
			Timeout:  "5s",
		},
		Tags: []string{"quiz", "pin", "session", "http"},
		Meta: map[string]string{
			"protocol": "http",
		},
	}, nil
}

func (sr *ServiceRegistry) Register() error {
	reg, err := sr.registration()
	if err != nil {
		return err
	}
	if err := sr.client.Agent().ServiceRegister(reg); err != nil {
		return fmt.Errorf("failed to register HTTP service with Consul: %v", err)
	}
	log.Printf("Registered %s with Consul as %s", sr.server.ServiceName, reg.ID)
	return nil
}

func (sr *ServiceRegistry) Deregister() error {
	if err := sr.client.Agent().ServiceDeregister(sr.server.ServiceID + "-http"); err != nil {
		return fmt.Errorf("failed to deregister HTTP service: %v", err)
	}
	return nil
}
