// Package oci moves built bootstrap images across machine boundaries:
// out of the daemon into standalone tarballs, and from the daemon up to
// registries.
//
// The package exists so that a bootstrap built on one machine can run on
// another without rebuilding — the saved tarball carries the image with
// its gangway labels intact, and a canonical save of an unchanged image
// is byte-for-byte reproducible.
//
// Only FromDaemon talks to Docker. Everything else operates on
// go-containerregistry's v1.Image values, which keeps save, push, and
// config inspection testable against in-memory images and registries.
package oci
