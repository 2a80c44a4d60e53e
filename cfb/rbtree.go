package cfb

// The directory's red-black tree is persisted as StreamId-valued
// Left/Right/Child fields on each entry, arena-style, with NoStream as the
// null link (design notes §9). gocfb implements it as a left-leaning
// red-black tree (Sedgewick): every red link is a left link, which lets
// insert/delete be written without parent pointers — each recursive call
// returns the (possibly rotated) subtree root for the caller to store back
// into its own Left/Right/Child field. LLRB's invariants are a strict
// specialization of a general red-black tree's, so the tree still satisfies
// every red-black property a reader checks for.

func (cf *CompoundFile) isRed(id StreamId) bool {
	if id == NoStream {
		return false
	}
	return cf.entries[id].Color == colorRed
}

func (cf *CompoundFile) rotateLeft(h StreamId) StreamId {
	x := cf.entries[h].Right
	cf.entries[h].Right = cf.entries[x].Left
	cf.entries[x].Left = h
	cf.entries[x].Color = cf.entries[h].Color
	cf.entries[h].Color = colorRed
	return x
}

func (cf *CompoundFile) rotateRight(h StreamId) StreamId {
	x := cf.entries[h].Left
	cf.entries[h].Left = cf.entries[x].Right
	cf.entries[x].Right = h
	cf.entries[x].Color = cf.entries[h].Color
	cf.entries[h].Color = colorRed
	return x
}

func flipColor(c uint8) uint8 {
	if c == colorRed {
		return colorBlack
	}
	return colorRed
}

func (cf *CompoundFile) flipColors(h StreamId) {
	cf.entries[h].Color = flipColor(cf.entries[h].Color)
	l, r := cf.entries[h].Left, cf.entries[h].Right
	if l != NoStream {
		cf.entries[l].Color = flipColor(cf.entries[l].Color)
	}
	if r != NoStream {
		cf.entries[r].Color = flipColor(cf.entries[r].Color)
	}
}

func (cf *CompoundFile) balance(h StreamId) StreamId {
	if cf.isRed(cf.entries[h].Right) && !cf.isRed(cf.entries[h].Left) {
		h = cf.rotateLeft(h)
	}
	if cf.isRed(cf.entries[h].Left) && cf.isRed(cf.entries[cf.entries[h].Left].Left) {
		h = cf.rotateRight(h)
	}
	if cf.isRed(cf.entries[h].Left) && cf.isRed(cf.entries[h].Right) {
		cf.flipColors(h)
	}
	return h
}

func (cf *CompoundFile) moveRedLeft(h StreamId) StreamId {
	cf.flipColors(h)
	if cf.isRed(cf.entries[cf.entries[h].Right].Left) {
		cf.entries[h].Right = cf.rotateRight(cf.entries[h].Right)
		h = cf.rotateLeft(h)
		cf.flipColors(h)
	}
	return h
}

func (cf *CompoundFile) moveRedRight(h StreamId) StreamId {
	cf.flipColors(h)
	if cf.isRed(cf.entries[cf.entries[h].Left].Left) {
		h = cf.rotateRight(h)
		cf.flipColors(h)
	}
	return h
}

func (cf *CompoundFile) treeMin(h StreamId) StreamId {
	for cf.entries[h].Left != NoStream {
		h = cf.entries[h].Left
	}
	return h
}

// insertChild inserts the already-populated entry x (its Name must be set)
// into the subtree rooted at root, returning the new subtree root. It fails
// KindDuplicateName if a sibling with the same ordering key exists.
func (cf *CompoundFile) insertChild(root, x StreamId) (StreamId, error) {
	newRoot, err := cf.insertNode(root, x)
	if err != nil {
		return root, err
	}
	cf.entries[newRoot].Color = colorBlack
	return newRoot, nil
}

func (cf *CompoundFile) insertNode(h, x StreamId) (StreamId, error) {
	if h == NoStream {
		cf.entries[x].Color = colorRed
		return x, nil
	}
	if cf.isRed(cf.entries[h].Left) && cf.isRed(cf.entries[h].Right) {
		cf.flipColors(h)
	}
	c := compareNames(cf.entries[x].Name, cf.entries[h].Name)
	var err error
	switch {
	case c < 0:
		cf.entries[h].Left, err = cf.insertNode(cf.entries[h].Left, x)
	case c > 0:
		cf.entries[h].Right, err = cf.insertNode(cf.entries[h].Right, x)
	default:
		return h, newErr(KindDuplicateName, cf.entries[x].Name)
	}
	if err != nil {
		return h, err
	}
	if cf.isRed(cf.entries[h].Right) && !cf.isRed(cf.entries[h].Left) {
		h = cf.rotateLeft(h)
	}
	if cf.isRed(cf.entries[h].Left) && cf.isRed(cf.entries[cf.entries[h].Left].Left) {
		h = cf.rotateRight(h)
	}
	return h, nil
}

// removeChild removes entry x from the subtree rooted at root, returning
// the new subtree root. The directory slot that ends up free (zeroed here
// via freeDirSlot) is whichever node the algorithm ultimately unlinks, which for
// a two-children case is x's in-order successor, not x itself — x's slot
// instead absorbs the successor's content. Either way the tree no longer
// contains x's name afterwards.
func (cf *CompoundFile) removeChild(root, x StreamId) (StreamId, error) {
	if !cf.isRed(cf.entries[root].Left) && !cf.isRed(cf.entries[root].Right) {
		cf.entries[root].Color = colorRed
	}
	newRoot, freed, err := cf.deleteNode(root, x)
	if err != nil {
		return root, err
	}
	if newRoot != NoStream {
		cf.entries[newRoot].Color = colorBlack
	}
	cf.freeDirSlot(freed)
	return newRoot, nil
}

func (cf *CompoundFile) deleteNode(h, x StreamId) (StreamId, StreamId, error) {
	if h == NoStream {
		return NoStream, NoStream, newErr(KindCorruptDirectory, "entry missing from its parent's subtree")
	}
	c := compareNames(cf.entries[x].Name, cf.entries[h].Name)
	var freed StreamId
	var err error
	if c < 0 {
		if !cf.isRed(cf.entries[h].Left) && !cf.isRed(cf.entries[cf.entries[h].Left].Left) {
			h = cf.moveRedLeft(h)
		}
		cf.entries[h].Left, freed, err = cf.deleteNode(cf.entries[h].Left, x)
	} else {
		if cf.isRed(cf.entries[h].Left) {
			h = cf.rotateRight(h)
		}
		c = compareNames(cf.entries[x].Name, cf.entries[h].Name)
		if c == 0 && cf.entries[h].Right == NoStream {
			return NoStream, h, nil
		}
		if !cf.isRed(cf.entries[h].Right) && !cf.isRed(cf.entries[cf.entries[h].Right].Left) {
			h = cf.moveRedRight(h)
		}
		c = compareNames(cf.entries[x].Name, cf.entries[h].Name)
		if c == 0 {
			succ := cf.treeMin(cf.entries[h].Right)
			cf.copyNodeContent(h, succ)
			var newRight StreamId
			newRight, freed, err = cf.deleteMin(cf.entries[h].Right)
			cf.entries[h].Right = newRight
		} else {
			cf.entries[h].Right, freed, err = cf.deleteNode(cf.entries[h].Right, x)
		}
	}
	if err != nil {
		return h, NoStream, err
	}
	return cf.balance(h), freed, nil
}

func (cf *CompoundFile) deleteMin(h StreamId) (StreamId, StreamId, error) {
	if cf.entries[h].Left == NoStream {
		return NoStream, h, nil
	}
	if !cf.isRed(cf.entries[h].Left) && !cf.isRed(cf.entries[cf.entries[h].Left].Left) {
		h = cf.moveRedLeft(h)
	}
	newLeft, freed, err := cf.deleteMin(cf.entries[h].Left)
	cf.entries[h].Left = newLeft
	if err != nil {
		return h, NoStream, err
	}
	return cf.balance(h), freed, nil
}

// copyNodeContent copies everything except the tree-structural fields
// (Left, Right, Color) from src into dst, used when the in-order successor
// takes over a deleted two-children node's position in the tree. Since src's
// own slot is freed afterwards, any Stream view already open on src is
// migrated to dst so it keeps addressing the same directory entry.
func (cf *CompoundFile) copyNodeContent(dst, src StreamId) {
	d, s := cf.entries[dst], cf.entries[src]
	d.Name, d.RawName, d.NameLen = s.Name, s.RawName, s.NameLen
	d.ObjectType = s.ObjectType
	d.Child = s.Child
	d.CLSID = s.CLSID
	d.StateBits = s.StateBits
	d.Created, d.Modified = s.Created, s.Modified
	d.Start, d.Size = s.Start, s.Size
	if sv, ok := cf.openStreams[src]; ok {
		delete(cf.openStreams, src)
		sv.id = dst
		cf.openStreams[dst] = sv
	}
}
