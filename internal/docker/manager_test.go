package docker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNaming(t *testing.T) {
	assert.Equal(t, "blueprint-demo", NetworkName("demo"))
	assert.Equal(t, "blueprint-demo-rust-todo-db", ContainerName("demo", "rust-todo-db"))
}
