package authsession

import "strings"

type decisionKind uint8

const (
	decideNone decisionKind = iota
	decideNavigate
	decideLogout
)

// decision is the outcome of the redirect rules for one state. Controllers act
// on a decision only when it differs from the previous one, so re-evaluating
// an unchanged state never repeats a navigation.
type decision struct {
	kind   decisionKind
	target string
}

type ruleInput struct {
	policy      Policy
	target      string
	route       string
	verifyRoute string
	user        User
	err         error
}

// decide applies the redirect rules in order; the first match wins.
func decide(in ruleInput) decision {
	if in.policy == PolicyGuest && in.target != "" && in.user != nil {
		return decision{kind: decideNavigate, target: in.target}
	}
	if in.target != "" && routePath(in.route) == routePath(in.verifyRoute) && in.user.EmailVerified() {
		return decision{kind: decideNavigate, target: in.target}
	}
	if in.policy == PolicyAuth && in.err != nil {
		return decision{kind: decideLogout}
	}
	return decision{}
}

func routePath(route string) string {
	if i := strings.IndexAny(route, "?#"); i >= 0 {
		route = route[:i]
	}
	if len(route) > 1 {
		route = strings.TrimRight(route, "/")
	}
	return route
}
