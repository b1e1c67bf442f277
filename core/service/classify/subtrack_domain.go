// Package classify holds classification scoring, domain extraction and
// domain-level clustering.
package classify

import (
	"sort"
	"strings"

	"subtrack_server/core/domain"
	"subtrack_server/core/port/out"
)

// ExtractDomain derives a normalized sender domain from a free-form address
// header. An angle-bracket form ("Display Name <user@domain>") yields the
// bracketed address; otherwise the whole header is treated as the address.
// The domain is everything after the last '@', lower-cased. No '@' means no
// domain.
func ExtractDomain(rawSender string) string {
	addr := strings.TrimSpace(rawSender)

	if open := strings.LastIndex(addr, "<"); open >= 0 {
		if close := strings.Index(addr[open:], ">"); close > 0 {
			addr = addr[open+1 : open+close]
		} else {
			addr = addr[open+1:]
		}
	}

	at := strings.LastIndex(addr, "@")
	if at < 0 || at == len(addr)-1 {
		return ""
	}

	return strings.ToLower(strings.TrimSpace(addr[at+1:]))
}

// ClusterDomains aggregates per-domain counts for review tooling. When any
// record of a domain carries a human decision (user_selected), that decision
// outranks LLM output for the domain's displayed classification.
func ClusterDomains(counts []*out.DomainCount) []*domain.DomainCluster {
	byDomain := make(map[string]*domain.DomainCluster)

	type vote struct {
		userSub    int
		userNonSub int
		llmSub     int
		llmNonSub  int
	}
	votes := make(map[string]*vote)

	for _, c := range counts {
		cluster, ok := byDomain[c.Domain]
		if !ok {
			cluster = &domain.DomainCluster{Domain: c.Domain}
			byDomain[c.Domain] = cluster
			votes[c.Domain] = &vote{}
		}
		v := votes[c.Domain]

		cluster.Total += c.Count
		if c.IsSubscription {
			cluster.Subscription += c.Count
		}
		if c.UserSelected {
			cluster.UserSelected += c.Count
			if c.IsSubscription {
				v.userSub += c.Count
			} else {
				v.userNonSub += c.Count
			}
		} else {
			cluster.LLMClassified += c.Count
			if c.IsSubscription {
				v.llmSub += c.Count
			} else {
				v.llmNonSub += c.Count
			}
		}
	}

	clusters := make([]*domain.DomainCluster, 0, len(byDomain))
	for name, cluster := range byDomain {
		v := votes[name]
		if v.userSub+v.userNonSub > 0 {
			cluster.IsSubscription = v.userSub >= v.userNonSub
		} else {
			cluster.IsSubscription = v.llmSub > v.llmNonSub
		}
		clusters = append(clusters, cluster)
	}

	sort.Slice(clusters, func(i, j int) bool {
		if clusters[i].Total != clusters[j].Total {
			return clusters[i].Total > clusters[j].Total
		}
		return clusters[i].Domain < clusters[j].Domain
	})
	return clusters
}
