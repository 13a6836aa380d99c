package runner

import (
	"fmt"
	"sort"
)

// startOrder orders services so each starts after its dependencies. Services
// with no ordering constraint between them start in name order.
func startOrder(services map[string]*managedService) ([]string, error) {
	pending := make(map[string]int, len(services))
	dependents := make(map[string][]string, len(services))

	for name, svc := range services {
		pending[name] += 0
		for _, dep := range svc.config.DependsOn {
			if _, ok := services[dep]; !ok {
				return nil, fmt.Errorf("service %q depends on unknown service %q", name, dep)
			}
			dependents[dep] = append(dependents[dep], name)
			pending[name]++
		}
	}

	var ready []string
	for name, n := range pending {
		if n == 0 {
			ready = append(ready, name)
		}
	}

	order := make([]string, 0, len(services))
	for len(ready) > 0 {
		sort.Strings(ready)
		next := ready[0]
		ready = ready[1:]
		order = append(order, next)

		for _, d := range dependents[next] {
			pending[d]--
			if pending[d] == 0 {
				ready = append(ready, d)
			}
		}
	}

	if len(order) != len(services) {
		return nil, fmt.Errorf("circular dependency between services")
	}
	return order, nil
}

func reversed(order []string) []string {
	out := make([]string, len(order))
	for i, name := range order {
		out[len(order)-1-i] = name
	}
	return out
}
