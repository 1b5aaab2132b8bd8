package cache

// node is an entry of the recency list. The list head is the most recently
// used entry and the tail the least recently used one.
type node[K comparable, V any] struct {
	key        K
	value      V
	prev, next *node[K, V]
}

type recency[K comparable, V any] struct {
	head, tail *node[K, V]
}

func (l *recency[K, V]) pushFront(n *node[K, V]) {
	n.prev = nil
	n.next = l.head
	if l.head != nil {
		l.head.prev = n
	}
	l.head = n
	if l.tail == nil {
		l.tail = n
	}
}

func (l *recency[K, V]) unlink(n *node[K, V]) {
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		l.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		l.tail = n.prev
	}
	n.prev, n.next = nil, nil
}

func (l *recency[K, V]) moveToFront(n *node[K, V]) {
	if n == l.head {
		return
	}
	l.unlink(n)
	l.pushFront(n)
}
