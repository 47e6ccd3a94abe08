// Package scene holds the node registry of a scene graph.
//
// A Graph owns its nodes, keyed by nodeid.ID, and maintains a reverse
// reference index from every referenced ID to the (referrer, role) pairs that
// name it. References are plain IDs: a reference to a node that is not in the
// graph is a dangling entry, recorded and indexed like any other, and resolves
// again if a node with that ID is inserted later.
//
// Subscribers can watch the roles of a node and are told synchronously when
// the role list changes or when a node it names is added, modified or
// removed.
package scene
