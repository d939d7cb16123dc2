// Package filter decides whether a request should be recorded.
package filter

import (
	"net/netip"
	"strings"

	"github.com/GoPolymarket/reqlog/internal/config"
	"github.com/GoPolymarket/reqlog/internal/pattern"
)

// Rule names, in evaluation order.
const (
	RuleMethod    = "method"
	RulePath      = "path"
	RuleAjax      = "ajax"
	RuleIP        = "ip"
	RuleUserAgent = "user_agent"
	RuleUsername  = "username"
)

// RequestContext carries the request fields the rules look at.
type RequestContext struct {
	Method    string
	Path      string
	Ajax      bool
	RemoteIP  string
	UserAgent string
	Username  string
}

// Rule is one admission check. Rejects returns true when the request must not
// be recorded.
type Rule interface {
	Name() string
	Rejects(rc RequestContext) bool
}

// Chain evaluates rules in order and stops at the first rejection.
type Chain struct {
	rules []Rule
}

func NewChain(rules ...Rule) *Chain {
	return &Chain{rules: rules}
}

// New builds the standard chain from configuration.
func New(cfg config.RequestLogConfig) *Chain {
	return NewChain(
		NewMethodRule(cfg.ValidMethodNames),
		NewPathRule(cfg.IgnorePaths),
		NewAjaxRule(cfg.IgnoreAjax),
		NewIPRule(cfg.IgnoreIP),
		NewUserAgentRule(cfg.IgnoreUserAgents),
		NewUsernameRule(cfg.IgnoreUsername),
	)
}

// Admit reports whether the request passes every rule. When it does not, the
// name of the rejecting rule is returned.
func (c *Chain) Admit(rc RequestContext) (bool, string) {
	for _, rule := range c.rules {
		if rule.Rejects(rc) {
			return false, rule.Name()
		}
	}
	return true, ""
}

func (c *Chain) Rules() []string {
	names := make([]string, 0, len(c.rules))
	for _, rule := range c.rules {
		names = append(names, rule.Name())
	}
	return names
}

type MethodRule struct {
	allowed map[string]struct{}
}

func NewMethodRule(methods []string) *MethodRule {
	allowed := make(map[string]struct{}, len(methods))
	for _, m := range methods {
		allowed[strings.ToLower(strings.TrimSpace(m))] = struct{}{}
	}
	return &MethodRule{allowed: allowed}
}

func (r *MethodRule) Name() string { return RuleMethod }

func (r *MethodRule) Rejects(rc RequestContext) bool {
	return !r.Allows(rc.Method)
}

func (r *MethodRule) Allows(method string) bool {
	_, ok := r.allowed[strings.ToLower(method)]
	return ok
}

type PathRule struct {
	ignore *pattern.Patterns
}

func NewPathRule(globs []string) *PathRule {
	return &PathRule{ignore: pattern.New(false, globs...)}
}

func (r *PathRule) Name() string { return RulePath }

func (r *PathRule) Rejects(rc RequestContext) bool {
	return r.ignore.Matches(strings.TrimPrefix(rc.Path, "/"))
}

type AjaxRule struct {
	ignore bool
}

func NewAjaxRule(ignore bool) *AjaxRule {
	return &AjaxRule{ignore: ignore}
}

func (r *AjaxRule) Name() string { return RuleAjax }

func (r *AjaxRule) Rejects(rc RequestContext) bool {
	return r.ignore && rc.Ajax
}

// IPRule rejects listed addresses. Entries may be single addresses or CIDR
// blocks; entries that parse as neither are compared as plain strings.
type IPRule struct {
	addrs    map[netip.Addr]struct{}
	prefixes []netip.Prefix
	literal  map[string]struct{}
}

func NewIPRule(entries []string) *IPRule {
	r := &IPRule{
		addrs:   make(map[netip.Addr]struct{}),
		literal: make(map[string]struct{}),
	}
	for _, raw := range entries {
		entry := strings.TrimSpace(raw)
		if entry == "" {
			continue
		}
		if strings.Contains(entry, "/") {
			if prefix, err := netip.ParsePrefix(entry); err == nil {
				r.prefixes = append(r.prefixes, prefix.Masked())
				continue
			}
		}
		if addr, err := netip.ParseAddr(entry); err == nil {
			r.addrs[addr.Unmap()] = struct{}{}
			continue
		}
		r.literal[entry] = struct{}{}
	}
	return r
}

func (r *IPRule) Name() string { return RuleIP }

func (r *IPRule) Rejects(rc RequestContext) bool {
	if _, ok := r.literal[rc.RemoteIP]; ok {
		return true
	}
	addr, err := netip.ParseAddr(rc.RemoteIP)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	if _, ok := r.addrs[addr]; ok {
		return true
	}
	for _, prefix := range r.prefixes {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

type UserAgentRule struct {
	ignore *pattern.Patterns
}

func NewUserAgentRule(globs []string) *UserAgentRule {
	return &UserAgentRule{ignore: pattern.New(false, globs...)}
}

func (r *UserAgentRule) Name() string { return RuleUserAgent }

func (r *UserAgentRule) Rejects(rc RequestContext) bool {
	return r.ignore.Matches(rc.UserAgent)
}

// UsernameRule only applies to authenticated requests.
type UsernameRule struct {
	ignore map[string]struct{}
}

func NewUsernameRule(usernames []string) *UsernameRule {
	ignore := make(map[string]struct{}, len(usernames))
	for _, u := range usernames {
		ignore[u] = struct{}{}
	}
	return &UsernameRule{ignore: ignore}
}

func (r *UsernameRule) Name() string { return RuleUsername }

func (r *UsernameRule) Rejects(rc RequestContext) bool {
	if rc.Username == "" {
		return false
	}
	_, ok := r.ignore[rc.Username]
	return ok
}
