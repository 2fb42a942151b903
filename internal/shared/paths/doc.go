// Package paths maps owners to their terminal directories and answers
// containment questions about them.
//
// Every owner gets one directory under the configured root:
//
//	<root>/
//	  ├── alice/
//	  ├── bob_40example.com/   (owner "bob@example.com")
//	  └── bob_5fexample.com/   (owner "bob_example.com")
//
// The mapping is one-to-one, so two owners never share a directory.
//
// # Usage
//
//	dir := paths.OwnerDir(cfg.BaseDir, ownerID)
//	if !paths.Within(dir, target) {
//	    // reject traversal
//	}
package paths
