// Package energy decides, per request, how a service spends an energy budget
// handed down by its caller.
//
// A service keeps three pieces of state:
//   - LocalData: recent (arguments, observed cost) samples of its own executions,
//     from which it derives the set of costs it can achieve locally.
//   - ArgsFilter: an approximate counter of how often each argument vector was
//     seen, used to skip optimization for one-off requests.
//   - The interval sets last reported by each downstream service.
//
// Awareness combines them. On each request it either returns the Unknown
// objective for every service (not enough data, infeasible budget, no
// objective) or picks one achievable cost per service with a multiple-choice
// knapsack and spreads the remaining budget with a fair-share water-filling.
package energy
