// Command enerctl evaluates energy allocation scenarios offline.
//
// Usage:
//
//	enerctl combine -f scenario.yaml
//	enerctl allocate -f scenario.yaml --objective 25 --fairness -o json
//	enerctl call -f scenario.yaml --objective 25 --args 1,2 --times 5
//
// Every flag can also be set from the environment with the ENERCTL_ prefix,
// for instance ENERCTL_FILE=scenario.yaml.
package main

import "github.com/HatiCode/enerbox/cmd/enerctl/cmd"

func main() {
	cmd.Execute()
}
