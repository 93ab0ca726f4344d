package stack

// Stack is a LIFO of T. Index 0 is the bottom element.
type Stack[T any] struct {
	a []T
}

// NewStack creates a new stack instance holding elm, bottom first
func NewStack[T any](elm ...T) *Stack[T] {
	s := &Stack[T]{a: make([]T, 0, len(elm))}
	for _, e := range elm {
		s.Push(e)
	}

	return s
}

// Push adds an element to the top of the stack
func (s *Stack[T]) Push(elm T) {
	s.a = append(s.a, elm)
}

// Pop removes and returns the top element of the stack
func (s *Stack[T]) Pop() (T, bool) {
	var zero T
	if len(s.a) < 1 {
		return zero, false
	}

	elm := s.a[len(s.a)-1]
	s.a[len(s.a)-1] = zero
	s.a = s.a[:len(s.a)-1]

	return elm, true
}

// Peek returns the top element of the stack without removing it
func (s *Stack[T]) Peek() (T, bool) {
	var zero T
	if len(s.a) < 1 {
		return zero, false
	}

	return s.a[len(s.a)-1], true
}

// At returns the element i positions below the top; At(0) is the top.
func (s *Stack[T]) At(i int) (T, bool) {
	var zero T
	if i < 0 || i >= len(s.a) {
		return zero, false
	}

	return s.a[len(s.a)-1-i], true
}

// Size returns the number of elements on the stack
func (s *Stack[T]) Size() int {
	return len(s.a)
}

// Array returns the underlying array of the stack, bottom first
func (s *Stack[T]) Array() []T {
	return s.a
}
