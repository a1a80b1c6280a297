// Package mirror implements scriptable mirror jobs: a named, linear
// sequence of actions run against an origin/destination remote pair,
// each action given a MirrorContext scoped to the job's declared
// refspecs (origin_fetch, destination_fetch, destination_push,
// create_branch, references, merge, rebase, cherry_pick, plus the
// origin/destination review APIs and a console).
//
// Unlike a migration Workflow, a mirror job never runs a transform: it
// moves refs and commits between two remotes directly, using
// pkg/gitrepo's plumbing façade for every git invocation.
package mirror
